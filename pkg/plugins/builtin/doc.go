// Package builtin provides the plugins shipped with fx.
//
// Resource plugins describe one Azure resource each: the bicep fragment they
// contribute to the composite template, the outputs they write to the
// environment state on provision and, for hosting resources, how a module is
// deployed. They are flat adapters: no cloud API is called, outputs are
// derived from the project, the environment config and the subscription.
//
// Feature plugins add manifest capabilities (bot, single sign-on). The tab
// scaffold plugin creates tab modules and the script plugin runs Starlark
// user tasks from the project's task directory.
//
// RegisterAll registers every plugin in a registry:
//
//	reg := engine.NewRegistry()
//	if err := builtin.RegisterAll(reg, builtin.Options{TaskDir: ".fx/tasks"}); err != nil {
//		return err
//	}
//
// Programs with one plugin set per process call RegisterDefault once at
// startup and create cores without a registry option.
package builtin
