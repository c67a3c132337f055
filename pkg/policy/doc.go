// Package policy evaluates Rego policies against composite templates before
// plugins apply side effects.
//
// Every policy is a Rego module defining a "deny" set in its package. Each
// entry is either a message string or an object:
//
//	deny contains violation if {
//	    some name, _ in input.template.parameters
//	    startswith(name, "legacy")
//	    violation := {
//	        "message": sprintf("parameter %s is deprecated", [name]),
//	        "severity": "warning",
//	        "plugin": "fx-resource-bot",
//	        "remediation": "rename the parameter",
//	    }
//	}
//
// The input document has three fields:
//
//	input.settings  project settings (appName, projectId, solutionSettings)
//	input.template  composite template (kind, parameters, modules, outputs, fragments)
//	input.context   operation, operationId and timestamp
//
// Violations with severity error or critical block the operation; the Engine
// reports them as an engine.FxError with code PolicyViolation. Lower
// severities are logged as warnings.
//
// Policies are loaded from .rego files (named after the file, severity error),
// JSON policy definitions and YAML or JSON bundles:
//
//	name: team-rules
//	version: 1.0.0
//	policies:
//	  - name: no-legacy-parameters
//	    severity: warning
//	    rego: |
//	      package team.legacy
//	      deny contains "legacy parameter" if input.template.parameters.legacy
//
// The Loader watches policy directories with fsnotify and the Engine swaps
// in reloaded policies without touching the built-in ones.
package policy
