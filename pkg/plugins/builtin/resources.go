package builtin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// NewFrontendHosting returns the Azure Storage static website plugin hosting
// tab modules. The tab capability itself comes with the tab code.
func NewFrontendHosting() engine.Plugin {
	return &hostingResource{
		azureResource: &azureResource{
			desc: engine.Descriptor{
				Name:         FrontendHosting,
				DisplayName:  "Frontend Hosting",
				Description:  "Static website hosting for tabs",
				Kind:         engine.KindResource,
				ResourceType: "Azure Storage",
			},
			symbol:   "frontendHosting",
			provider: "Microsoft.Storage/storageAccounts",
			outputs: func(t target, _ *engine.Inputs, _ map[string]interface{}) (engine.CloudResource, error) {
				name := t.name("fe", 24)
				domain := name + ".z13.web.core.windows.net"
				return engine.CloudResource{
					KeyResourceName: name,
					KeyDomain:       domain,
					KeyEndpoint:     "https://" + domain,
				}, nil
			},
			local: func(*engine.Context, map[string]interface{}) engine.CloudResource {
				return engine.CloudResource{KeyEndpoint: LocalTabEndpoint, KeyDomain: "localhost"}
			},
		},
		dir: "tabs",
	}
}

// NewWebApp returns the Azure App Service plugin.
func NewWebApp() engine.Plugin {
	return &hostingResource{
		azureResource: &azureResource{
			desc: engine.Descriptor{
				Name:         WebApp,
				DisplayName:  "Web App",
				Description:  "Azure App Service hosting a web application",
				Kind:         engine.KindResource,
				ResourceType: "Azure Web App",
			},
			symbol:    "webApp",
			provider:  "Microsoft.Web/sites",
			configure: true,
			outputs:   siteOutputs("webapp", nil),
		},
		dir: "webapp",
	}
}

// NewFunction returns the Azure Functions plugin hosting the API module.
func NewFunction() engine.Plugin {
	return &hostingResource{
		azureResource: &azureResource{
			desc: engine.Descriptor{
				Name:         Function,
				DisplayName:  "Function",
				Description:  "Azure Functions hosting the backend API",
				Kind:         engine.KindResource,
				ResourceType: "Azure Function App",
			},
			symbol:    "function",
			provider:  "Microsoft.Web/sites",
			configure: true,
			params:    map[string]interface{}{"functionNodeVersion": "14"},
			outputs: siteOutputs("api", func(t target, out engine.CloudResource) {
				out["storageAccountName"] = t.name("fn", 24)
			}),
			local: func(*engine.Context, map[string]interface{}) engine.CloudResource {
				return engine.CloudResource{KeyEndpoint: "http://localhost:7071"}
			},
		},
		dir: "api",
	}
}

// siteOutputs returns the outputs of an App Service site.
func siteOutputs(suffix string, extra func(target, engine.CloudResource)) func(target, *engine.Inputs, map[string]interface{}) (engine.CloudResource, error) {
	return func(t target, _ *engine.Inputs, _ map[string]interface{}) (engine.CloudResource, error) {
		name := t.name(suffix, 60)
		domain := name + ".azurewebsites.net"
		out := engine.CloudResource{
			KeyResourceName:       name,
			KeyDomain:             domain,
			KeyEndpoint:           "https://" + domain,
			"appServicePlanName":  name + "-plan",
			"resourceGroupName":   t.resourceGroup,
			"resourceGroupRegion": t.location,
		}
		if extra != nil {
			extra(t, out)
		}
		return out, nil
	}
}

// SQL question names.
const (
	QuestionSQLAdminName = "sql-admin-name"
	QuestionSQLPassword  = "sql-password"
)

// ConfigSkipAddingSQLUser skips creating the database user of the API.
const ConfigSkipAddingSQLUser = "skipAddingSqlUser"

type sqlResource struct {
	*azureResource
}

var _ engine.QuestionProvider = (*sqlResource)(nil)

// NewSQL returns the Azure SQL plugin. The server admin comes from the
// provision answers; a password is generated when none is given and kept
// secret in the environment state.
func NewSQL() engine.Plugin {
	return &sqlResource{azureResource: &azureResource{
		desc: engine.Descriptor{
			Name:         SQL,
			DisplayName:  "Azure SQL",
			Description:  "Azure SQL database accessed by the API",
			Kind:         engine.KindResource,
			ResourceType: "Azure SQL Database",
		},
		symbol:    "azureSql",
		provider:  "Microsoft.Sql/servers",
		deps:      []string{Function},
		configure: true,
		outputs: func(t target, in *engine.Inputs, prev map[string]interface{}) (engine.CloudResource, error) {
			name := t.name("sql", 63)
			out := engine.CloudResource{
				KeyResourceName:  name,
				"sqlEndpoint":    name + ".database.windows.net",
				"databaseName":   t.name("db", 128),
				"admin":          keep(prev, "admin", func() string { return answer(in, QuestionSQLAdminName, "fxadmin") }),
				"adminPassword":  keep(prev, "adminPassword", func() string { return answer(in, QuestionSQLPassword, generatePassword()) }),
				"skipAddingUser": t.config[ConfigSkipAddingSQLUser] == true,
			}
			out[engine.SecretFieldsKey] = []string{"adminPassword"}
			return out, nil
		},
	}}
}

// QuestionsFor implements engine.QuestionProvider.
func (s *sqlResource) QuestionsFor(_ context.Context, stage engine.Stage, _ *engine.Context, _ *engine.Inputs) (*engine.QTreeNode, error) {
	if stage != engine.StageProvision {
		return nil, nil
	}
	root := engine.NewGroupNode()
	root.AddChild(&engine.QTreeNode{Data: engine.Question{Name: QuestionSQLAdminName, Type: engine.QuestionText, Title: "SQL admin name", Default: "fxadmin"}})
	root.AddChild(&engine.QTreeNode{Data: engine.Question{Name: QuestionSQLPassword, Type: engine.QuestionText, Title: "SQL admin password"}})
	return root, nil
}

// ConfigAPIMServiceName names an existing API Management service.
const ConfigAPIMServiceName = "apimServiceName"

var apimServiceName = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// NewAPIM returns the API Management plugin publishing the API.
func NewAPIM() engine.Plugin {
	return &azureResource{
		desc: engine.Descriptor{
			Name:         APIM,
			DisplayName:  "API Management",
			Description:  "Azure API Management publishing the API",
			Kind:         engine.KindResource,
			ResourceType: "Azure API Management",
		},
		symbol:    "apim",
		provider:  "Microsoft.ApiManagement/service",
		deps:      []string{Function, AAD},
		configure: true,
		outputs: func(t target, _ *engine.Inputs, _ map[string]interface{}) (engine.CloudResource, error) {
			name := t.name("am", 50)
			if v, ok := t.config[ConfigAPIMServiceName]; ok {
				s, isString := v.(string)
				if !isString || !apimServiceName.MatchString(s) {
					return nil, engine.NewUserError(APIM, engine.ErrCodeInvalidInput,
						fmt.Sprintf("Project configuration '%s' of '%s' is invalid. The value can contain only letters, numbers and hyphens. "+
							"The first character must be a letter and last character must be a letter or a number.", ConfigAPIMServiceName, APIM))
				}
				name = s
			}
			return engine.CloudResource{
				KeyResourceName:   name,
				KeyEndpoint:       "https://" + name + ".azure-api.net",
				"apiPrefix":       t.name("api", 40),
				"apiDocumentPath": "openapi/openapi.json",
			}, nil
		},
	}
}

// NewKeyVault returns the Key Vault plugin.
func NewKeyVault() engine.Plugin {
	return &azureResource{
		desc: engine.Descriptor{
			Name:         KeyVault,
			DisplayName:  "Key Vault",
			Description:  "Azure Key Vault holding application secrets",
			Kind:         engine.KindResource,
			ResourceType: "Azure Key Vault",
		},
		symbol:   "keyVault",
		provider: "Microsoft.KeyVault/vaults",
		deps:     []string{AAD},
		outputs: func(t target, _ *engine.Inputs, _ map[string]interface{}) (engine.CloudResource, error) {
			name := t.name("kv", 24)
			return engine.CloudResource{
				KeyResourceName: name,
				"vaultUri":      "https://" + name + ".vault.azure.net/",
			}, nil
		},
	}
}

// NewSimpleAuth returns the Simple Auth plugin exchanging tab tokens.
func NewSimpleAuth() engine.Plugin {
	return &azureResource{
		desc: engine.Descriptor{
			Name:         SimpleAuth,
			DisplayName:  "Simple Auth",
			Description:  "Token exchange service for tabs",
			Kind:         engine.KindResource,
			ResourceType: "Simple Auth",
		},
		symbol:    "simpleAuth",
		provider:  "Microsoft.Web/sites",
		deps:      []string{AAD},
		configure: true,
		outputs:   siteOutputs("sa", nil),
		local: func(*engine.Context, map[string]interface{}) engine.CloudResource {
			return engine.CloudResource{KeyEndpoint: "http://localhost:55000"}
		},
	}
}

func answer(in *engine.Inputs, name, def string) string {
	if in == nil {
		return def
	}
	if v, ok := in.Answers[name].(string); ok && v != "" {
		return v
	}
	return def
}

func generatePassword() string {
	return "Fx!" + uuid.NewString()
}
