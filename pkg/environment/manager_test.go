package environment

import (
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	crypto, err := NewLocalCrypto("5bd8cbd5-2e43-4a7b-9a87-bb0c6d6c58d1")
	require.NoError(t, err)
	return NewManager(t.TempDir(), crypto, zerolog.Nop())
}

func TestManager_CreateAndList(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ListEnvs()
	assert.ErrorIs(t, err, engine.ErrPathNotExist)

	require.NoError(t, m.CreateEnv("dev", map[string]interface{}{"manifest": map[string]interface{}{"appName": "app"}}))
	require.NoError(t, m.CreateEnv("local", nil))

	envs, err := m.ListEnvs()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "local"}, envs)

	assert.ErrorIs(t, m.CreateEnv("dev", nil), engine.ErrInvalidInput)
	assert.ErrorIs(t, m.CreateEnv("../etc", nil), engine.ErrInvalidInput)
}

func TestManager_SecretsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateEnv("dev", nil))

	state := engine.EnvState{
		"fx-resource-bot": {
			"botId":                "bot-id",
			"botPassword":          "p@ssw0rd",
			engine.SecretFieldsKey: []string{"botPassword"},
		},
	}
	path, err := m.WriteEnvState("dev", state)
	require.NoError(t, err)
	assert.Equal(t, StateFile(m.ProjectPath(), "dev"), path)

	assert.Equal(t, "p@ssw0rd", state["fx-resource-bot"]["botPassword"], "caller state must not change")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "p@ssw0rd")
	assert.Contains(t, string(raw), "{{fx-resource-bot.botPassword}}")

	userdata, err := os.ReadFile(UserDataFile(m.ProjectPath(), "dev"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(userdata), "fx-resource-bot.botPassword="+CipherPrefix))

	info, err := m.LoadEnvInfo("dev")
	require.NoError(t, err)
	assert.Equal(t, "p@ssw0rd", info.State["fx-resource-bot"]["botPassword"])
	assert.Equal(t, "bot-id", info.State["fx-resource-bot"]["botId"])
}

func TestManager_RewriteKeepsSecrets(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateEnv("dev", nil))

	_, err := m.WriteEnvState("dev", engine.EnvState{
		"fx-resource-azure-sql": {"adminPassword": "s3cret", engine.SecretFieldsKey: []string{"adminPassword"}},
	})
	require.NoError(t, err)

	// A second write of the loaded-but-unchanged placeholder keeps the userdata entry.
	raw, err := m.ReadEnvState("dev")
	require.NoError(t, err)
	state := engine.EnvState{}
	for k, v := range raw {
		state[k] = v.(map[string]interface{})
	}
	_, err = m.WriteEnvState("dev", state)
	require.NoError(t, err)

	info, err := m.LoadEnvInfo("dev")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", info.State["fx-resource-azure-sql"]["adminPassword"])
}

func TestManager_LoadEnvInfo(t *testing.T) {
	m := newTestManager(t)

	_, err := m.LoadEnvInfo("")
	assert.ErrorIs(t, err, engine.ErrEnvNotSpecified)

	_, err = m.LoadEnvInfo("staging")
	assert.ErrorIs(t, err, engine.ErrEnvNotFound)

	require.NoError(t, m.CreateEnv("staging", map[string]interface{}{"region": "westus"}))
	info, err := m.LoadEnvInfo("staging")
	require.NoError(t, err)
	assert.Equal(t, "westus", info.Config["region"])
	assert.Empty(t, info.State)
}

func TestManager_ReadEnvState(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, m *Manager)
		env     string
		wantErr error
	}{
		{name: "no project", env: "dev", wantErr: engine.ErrNotSupportedProjectType},
		{name: "env not specified", wantErr: engine.ErrEnvNotSpecified},
		{
			name:    "env not found",
			setup:   func(t *testing.T, m *Manager) { require.NoError(t, m.CreateEnv("dev", nil)) },
			env:     "prod",
			wantErr: engine.ErrEnvNotFound,
		},
		{
			name:    "not provisioned",
			setup:   func(t *testing.T, m *Manager) { require.NoError(t, m.CreateEnv("dev", nil)) },
			env:     "dev",
			wantErr: engine.ErrEnvNotProvisioned,
		},
		{
			name: "invalid file",
			setup: func(t *testing.T, m *Manager) {
				require.NoError(t, m.CreateEnv("dev", nil))
				require.NoError(t, os.MkdirAll(StatesDir(m.ProjectPath()), 0755))
				require.NoError(t, os.WriteFile(StateFile(m.ProjectPath(), "dev"), []byte("{"), 0644))
			},
			env:     "dev",
			wantErr: engine.ErrInvalidEnvFile,
		},
		{
			name: "provisioned",
			setup: func(t *testing.T, m *Manager) {
				require.NoError(t, m.CreateEnv("dev", nil))
				_, err := m.WriteEnvState("dev", engine.EnvState{"fx-resource-function": {"functionEndpoint": "https://fn"}})
				require.NoError(t, err)
			},
			env: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			if tt.setup != nil {
				tt.setup(t, m)
			}
			state, err := m.ReadEnvState(tt.env)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, state, "fx-resource-function")
		})
	}
}

func TestLocalCrypto(t *testing.T) {
	c, err := NewLocalCrypto("project-a")
	require.NoError(t, err)
	other, err := NewLocalCrypto("project-b")
	require.NoError(t, err)

	sealed, err := c.Encrypt("hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, CipherPrefix))

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err, "a different project key must not open the secret")

	plain, err = c.Decrypt("not-encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted", plain)

	_, err = NewLocalCrypto("")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}
