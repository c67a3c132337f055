// Package environment reads and writes per-environment configuration and
// provisioned state under <project>/.fx.
//
// Layout:
//
//	.fx/configs/config.<env>.json   environment configuration
//	.fx/states/state.<env>.json     plugin outputs, keyed by plugin id
//	.fx/states/<env>.userdata       encrypted secret fields
//
// Fields a plugin lists under "secretFields" never reach the state file:
// they are encrypted into the userdata file and the state file keeps a
// "{{plugin.key}}" placeholder that LoadEnvInfo resolves again.
package environment
