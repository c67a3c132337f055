package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
	"github.com/thomyg/TeamsFx/pkg/policy"
	"github.com/thomyg/TeamsFx/pkg/project"
)

// run executes the fx command line and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "now")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "fx %s", strings.Join(args, " "))
	return out
}

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"sql-admin-name=dbadmin", "bot-capabilities=Bot,MessagingExtension", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"sql-admin-name":   "dbadmin",
		"bot-capabilities": []string{"Bot", "MessagingExtension"},
		"empty":            "",
	}, got)

	got, err = parseAnswers(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseAnswers([]string{bad})
		assert.ErrorIs(t, err, engine.ErrInvalidInput, bad)
	}
}

func TestPluginID(t *testing.T) {
	assert.Equal(t, builtin.SQL, pluginID("sql"))
	assert.Equal(t, builtin.AAD, pluginID("SSO"))
	assert.Equal(t, "fx-resource-custom", pluginID("fx-resource-custom"))
}

func TestEnvConfig(t *testing.T) {
	cfg, err := envConfig("", "", "", "")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	file := filepath.Join(t.TempDir(), "prod.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"manifest":{"appName":"todo"},"azure":{"location":"westeurope"}}`), 0644))
	cfg, err = envConfig(file, "sub-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"manifest": map[string]interface{}{"appName": "todo"},
		"azure": map[string]interface{}{
			builtin.ConfigSubscriptionID: "sub-1",
			builtin.ConfigLocation:       "westeurope",
		},
	}, cfg)

	require.NoError(t, os.WriteFile(file, []byte(`[1]`), 0644))
	_, err = envConfig(file, "", "", "")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestEnvTokenProvider(t *testing.T) {
	vars := map[string]string{envSubscriptionID: " sub-1 "}
	p := envTokenProvider{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	sub, err := p.SubscriptionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub)

	_, err = p.AccessToken(context.Background(), "https://management.azure.com/.default")
	assert.True(t, engine.IsUserError(err))

	vars[envAccessToken] = "token"
	token, err := p.AccessToken(context.Background(), "scope")
	require.NoError(t, err)
	assert.Equal(t, "token", token)
}

func TestCLI_ProjectLifecycle(t *testing.T) {
	root := t.TempDir()
	mustRun(t, "new", "todo-list", "--project", root, "--capabilities", "tab")
	dir := filepath.Join(root, "todo-list")

	settings, err := project.LoadSettings(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{builtin.LocalDebug, builtin.FrontendHosting}, settings.Solution.ActiveResourcePlugins)
	require.Len(t, settings.Solution.Modules, 1)
	assert.Equal(t, builtin.FrontendHosting, settings.Solution.Modules[0].HostingPlugin)
	assert.FileExists(t, filepath.Join(dir, "tabs", "src", "index.tsx"))
	cfg, err := config.LoadForProject(dir, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Policy.Paths, cfg.Policy.Paths)
	assert.Equal(t, config.Default().Tasks, cfg.Tasks)
	assert.FileExists(t, filepath.Join(dir, ".fx", config.FileName))

	mustRun(t, "env", "add", "test", "--subscription", "sub-1", "--project", dir)
	out := mustRun(t, "env", "list", "--json", "--project", dir)
	var envs []string
	require.NoError(t, json.Unmarshal([]byte(out), &envs))
	assert.Contains(t, envs, "test")

	mustRun(t, "resource", "add", "function", "--project", dir)
	mustRun(t, "provision", "--env", "test", "--project", dir)
	out = mustRun(t, "provision", "--env", "test", "--configure-only", "--json", "--project", dir)
	assert.Contains(t, out, "configured")

	out = mustRun(t, "resource", "show", "function", "--env", "test", "--query", builtin.KeyEndpoint, "--project", dir)
	assert.Equal(t, "https://todolisttestapi.azurewebsites.net\n", out)

	out = mustRun(t, "resource", "list", "--env", "test", "--project", dir)
	assert.Contains(t, out, builtin.Function)
	assert.Contains(t, out, builtin.FrontendHosting)

	out = mustRun(t, "history", "--json", "--name", "provision", "--project", dir)
	var ops []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "succeeded", ops[0]["status"])

	mustRun(t, "validate", "--project", dir)
}

func TestCLI_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := run(t, "resource", "list", "--env", "dev", "--project", root)
	assert.ErrorIs(t, err, engine.ErrNotSupportedProjectType)

	mustRun(t, "new", "todo-list", "--here", "--project", root)
	_, err = run(t, "resource", "show", "function", "--env", "dev", "--project", root)
	assert.ErrorIs(t, err, engine.ErrEnvNotProvisioned)

	_, err = run(t, "resource", "list", "--env", "prod", "--project", root)
	assert.ErrorIs(t, err, engine.ErrEnvNotFound)

	_, err = run(t, "new", "todo-list", "--capabilities", "connector", "--project", root)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestCLI_TaskRun(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "new", "todo-list", "--here", "--project", dir)
	tasks := filepath.Join(dir, ".fx", "tasks")
	require.NoError(t, os.MkdirAll(tasks, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tasks, "count.star"),
		[]byte("total = int(params[\"rows\"]) * 2\nprint(\"rows\", total)\n"), 0644))

	out := mustRun(t, "task", "run", "script", "count", "--param", "rows=21", "--json", "--project", dir)
	var res struct {
		Output  map[string]interface{} `json:"output"`
		Printed []string               `json:"printed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 42, res.Output["total"])
	assert.Equal(t, []string{"rows 42"}, res.Printed)
}

func TestCLI_TaskRunUsesProjectTaskDir(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "new", "todo-list", "--here", "--project", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fx", "fx.yaml"), []byte("tasks: scripts\n"), 0644))
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scripts, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "hello.star"), []byte("greeting = \"hi \" + app\n"), 0644))

	out := mustRun(t, "task", "run", "script", "hello", "--json", "--project", dir)
	var res struct {
		Output map[string]interface{} `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "hi todo-list", res.Output["greeting"])
}

func TestCLI_ResourceQuestions(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "new", "todo-list", "--here", "--project", dir)

	out := mustRun(t, "resource", "questions", "--project", dir)
	assert.Contains(t, out, engine.QuestionModule)
	assert.Contains(t, out, builtin.SQL)

	out = mustRun(t, "resource", "questions", "--json", "--project", dir)
	var node engine.QTreeNode
	require.NoError(t, json.Unmarshal([]byte(out), &node))
	q, ok := node.Find(engine.QuestionResource)
	require.True(t, ok)
	assert.True(t, hasOption(q, builtin.Function))

	_, err := run(t, "resource", "questions", "bot", "--project", dir)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestCLI_Policy(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "new", "todo-list", "--here", "--project", dir)
	fxYAML := filepath.Join(dir, ".fx", "fx.yaml")
	require.NoError(t, os.WriteFile(fxYAML, []byte("policy:\n  disable: [parameter-naming]\n"), 0644))

	out := mustRun(t, "policy", "list", "--json", "--project", dir)
	var policies []policy.Policy
	require.NoError(t, json.Unmarshal([]byte(out), &policies))
	require.Len(t, policies, len(policy.GetBuiltinPolicies()))
	for _, p := range policies {
		assert.Equal(t, p.Name != policy.PolicyParameterNaming, p.Enabled, p.Name)
	}

	out = mustRun(t, "policy", "show", policy.PolicyModuleBinding, "--project", dir)
	assert.Contains(t, out, "package fx.policies.binding")

	_, err := run(t, "policy", "show", "missing", "--project", dir)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	require.NoError(t, os.WriteFile(fxYAML, []byte("policy:\n  disable: [missing]\n"), 0644))
	_, err = run(t, "policy", "list", "--project", dir)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	require.NoError(t, os.WriteFile(fxYAML, []byte("policy:\n  enabled: false\n"), 0644))
	_, err = run(t, "policy", "list", "--project", dir)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}
