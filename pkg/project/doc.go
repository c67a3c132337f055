// Package project reads and writes the files of an fx project.
//
// Layout of a project:
//
//	.fx/configs/projectSettings.json      project settings
//	.fx/configs/config.<env>.json         environment configs (package environment)
//	.fx/states/state.<env>.json           environment state (package environment)
//	templates/appPackage/manifest.template.json
//	templates/azure/main.bicep            composite template entry point
//	templates/azure/provision.bicep
//	templates/azure/config.bicep
//	templates/azure/provision/<module>.bicep
//	templates/azure/teamsFx/<module>.bicep
//	templates/azure/parameters.json
//	templates/azure/composite.json        merged fragments, read back by LoadTemplate
//
// FileManifestProvider and FileTemplateStore implement engine.ManifestProvider
// and engine.TemplateStore over this layout. SettingsWatcher reports changes of
// the project settings file.
package project
