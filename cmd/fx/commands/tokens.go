package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Environment variables read by envTokenProvider.
const (
	envSubscriptionID = "AZURE_SUBSCRIPTION_ID"
	envAccessToken    = "AZURE_ACCESS_TOKEN"
)

// envTokenProvider reads credentials from the process environment.
type envTokenProvider struct {
	lookup func(string) (string, bool)
}

var _ engine.TokenProvider = envTokenProvider{}

func newEnvTokenProvider() envTokenProvider {
	return envTokenProvider{lookup: os.LookupEnv}
}

// AccessToken implements engine.TokenProvider.
func (p envTokenProvider) AccessToken(_ context.Context, scope string) (string, error) {
	if v, ok := p.lookup(envAccessToken); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	return "", engine.NewUserError(engine.SourceCore, engine.ErrCodeInvalidInput,
		fmt.Sprintf("no access token for scope %s", scope)).
		WithHint("set " + envAccessToken)
}

// SubscriptionID implements engine.TokenProvider. An unset variable yields
// an empty id so the environment config can supply one.
func (p envTokenProvider) SubscriptionID(context.Context) (string, error) {
	v, _ := p.lookup(envSubscriptionID)
	return strings.TrimSpace(v), nil
}
