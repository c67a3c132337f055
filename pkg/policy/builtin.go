package policy

// Names of the built-in policies.
const (
	PolicyParameterNaming = "parameter-naming"
	PolicyModuleBinding   = "module-binding"
	PolicyFragmentOwner   = "fragment-ownership"
	PolicyPlaintextSecret = "plaintext-secrets"
	PolicyLocalDebug      = "local-debug-template"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		parameterNamingPolicy(),
		moduleBindingPolicy(),
		fragmentOwnershipPolicy(),
		plaintextSecretsPolicy(),
		localDebugTemplatePolicy(),
	}
}

// parameterNamingPolicy keeps template parameter names usable as bicep identifiers.
func parameterNamingPolicy() Policy {
	return Policy{
		Name:        PolicyParameterNaming,
		Description: "Template parameter names must be lowerCamelCase identifiers",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"naming", "bicep"},
		Rego: `package fx.policies.naming

deny contains violation if {
	some name, _ in input.template.parameters
	not regex.match("^[a-z][a-zA-Z0-9]*$", name)
	violation := {
		"message": sprintf("template parameter '%s' must be lowerCamelCase", [name]),
		"severity": "error",
	}
}
`,
	}
}

// moduleBindingPolicy requires every hosting plugin to be active.
func moduleBindingPolicy() Policy {
	return Policy{
		Name:        PolicyModuleBinding,
		Description: "Every module must be hosted by an active resource plugin",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"settings"},
		Rego: `package fx.policies.binding

active contains p if {
	some p in input.settings.solutionSettings.activeResourcePlugins
}

deny contains violation if {
	some i, m in input.settings.solutionSettings.modules
	m.hostingPlugin
	not active[m.hostingPlugin]
	violation := {
		"message": sprintf("module %d is hosted by %s, which is not active", [i, m.hostingPlugin]),
		"severity": "error",
		"plugin": m.hostingPlugin,
		"remediation": sprintf("run 'fx resource add %s --module %d'", [m.hostingPlugin, i]),
	}
}
`,
	}
}

// fragmentOwnershipPolicy rejects fragments of plugins that left the project.
func fragmentOwnershipPolicy() Policy {
	return Policy{
		Name:        PolicyFragmentOwner,
		Description: "Template fragments must belong to active plugins",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"template"},
		Rego: `package fx.policies.fragments

active contains p if {
	some p in input.settings.solutionSettings.activeResourcePlugins
}

deny contains violation if {
	some f in input.template.fragments
	not active[f.plugin]
	violation := {
		"message": sprintf("template fragment of %s belongs to no active plugin", [f.plugin]),
		"severity": "error",
		"plugin": f.plugin,
	}
}
`,
	}
}

// plaintextSecretsPolicy forbids literal values for secret parameters.
func plaintextSecretsPolicy() Policy {
	return Policy{
		Name:        PolicyPlaintextSecret,
		Description: "Secret template parameters must reference env state placeholders",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"security"},
		Rego: `package fx.policies.secrets

secret_name(name) if contains(lower(name), "password")

secret_name(name) if contains(lower(name), "secret")

deny contains violation if {
	some name, value in input.template.parameters
	secret_name(name)
	is_string(value)
	value != ""
	not startswith(value, "{{")
	violation := {
		"message": sprintf("template parameter '%s' holds a plain text secret", [name]),
		"severity": "error",
		"remediation": "reference the value through a {{state.<plugin>.<key>}} placeholder",
	}
}
`,
	}
}

// localDebugTemplatePolicy flags cloud templates from the local debug plugin.
func localDebugTemplatePolicy() Policy {
	return Policy{
		Name:        PolicyLocalDebug,
		Description: "The local debug plugin should not contribute cloud templates",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"template", "local"},
		Rego: `package fx.policies.localdebug

deny contains violation if {
	some f in input.template.fragments
	f.plugin == "fx-resource-local-debug"
	violation := {
		"message": "the local debug plugin contributes a cloud template fragment",
		"severity": "warning",
		"plugin": f.plugin,
	}
}
`,
	}
}
