// Package engine provides the plugin lifecycle orchestration engine of fx.
//
// # Overview
//
// A project is composed from independently pluggable resource, feature and
// scaffold plugins. The engine drives the active plugins through a fixed
// lifecycle:
//
//  1. Scaffold - Generate module source code (Scaffolder)
//  2. Add - Add a resource or feature with its dependency closure
//  3. Templates - Generate or update the composite infrastructure template
//  4. Provision - preProvision, provisionResource, configureResource
//  5. Deploy - preDeploy, deploy per module
//  6. Local debug - provisionLocalResource, configureLocalResource
//  7. User tasks - Named tasks dispatched to the solution or a plugin
//
// # Components
//
//   - Registry: Maps plugin ids to instances; read-only after startup
//   - DependencyResolver: Fixed-point closure over PluginDependencies
//   - TemplateAggregator: Merges fragments, rejecting name conflicts
//   - Orchestrator: Sequences stages and tracks an Operation state machine
//   - Middleware: Wraps each top-level invocation (see package core)
//
// # Plugin Contract
//
// Every plugin implements Plugin. Each lifecycle stage is a separate small
// interface; a plugin that does not implement a stage is skipped for it:
//
//	type ResourceProvisioner interface {
//	    ProvisionResource(ctx context.Context, pctx *Context, inputs *Inputs,
//	        env *EnvInfo, tokens TokenProvider) (CloudResource, error)
//	}
//
// Plugins run sequentially and share the mutable Context. Stages run
// stage-major: all active plugins finish a stage, in activation order,
// before the next stage starts.
//
// # Operation States
//
//	idle -> dependencyResolved -> templateGenerated -> pluginsInvoked ->
//	manifestPersisted -> done
//
// Any state may move to failed on the first plugin error.
//
// # Error Classification
//
// Errors crossing a plugin boundary are classified by ClassifyPluginError:
//
//   - User: Actionable misconfiguration with a remediation hint
//   - System: Unexpected failure; unknown errors become UnhandledError
//   - Cancellation: CancelProvision, returned unchanged
//
// There is no rollback of side effects applied by plugins that ran before
// a failure.
package engine
