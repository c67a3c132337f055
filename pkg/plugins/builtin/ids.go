package builtin

import "github.com/thomyg/TeamsFx/pkg/engine"

// Plugin ids.
const (
	FrontendHosting = "fx-resource-frontend-hosting"
	Bot             = "fx-resource-bot"
	WebApp          = "fx-resource-azure-web-app"
	Function        = "fx-resource-function"
	SQL             = "fx-resource-azure-sql"
	APIM            = "fx-resource-apim"
	KeyVault        = "fx-resource-key-vault"
	AAD             = "fx-resource-aad-app-for-teams"
	SimpleAuth      = "fx-resource-simple-auth"
	SPFx            = "fx-resource-spfx"
	LocalDebug      = engine.LocalDebugPlugin
	TabScaffold     = "fx-scaffold-react-tab"
	Script          = "fx-task-script"
)

// Keys shared by the outputs of resource plugins.
const (
	KeyResourceID     = "resourceId"
	KeyResourceName   = "resourceName"
	KeyEndpoint       = "endpoint"
	KeyDomain         = "domain"
	KeyLastDeployTime = "lastDeployTime"
	KeyDeployChecksum = "deployChecksum"
)

// Keys of the azure section of the environment config.
const (
	ConfigSubscriptionID = "subscriptionId"
	ConfigResourceGroup  = "resourceGroupName"
	ConfigLocation       = "location"
	ConfigTenantID       = "tenantId"
)

// DefaultLocation is used when the environment config names none.
const DefaultLocation = "eastus"
