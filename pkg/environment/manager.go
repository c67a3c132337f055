package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// SourceEnvironment is the error source of this package.
const SourceEnvironment = "environment"

var envNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Manager manages the environments of one project.
type Manager struct {
	projectPath string
	crypto      CryptoProvider
	logger      zerolog.Logger
}

// NewManager creates a manager for the project at projectPath. crypto may
// be nil for projects without secrets.
func NewManager(projectPath string, crypto CryptoProvider, logger zerolog.Logger) *Manager {
	return &Manager{
		projectPath: projectPath,
		crypto:      crypto,
		logger:      logger.With().Str("component", "environment").Logger(),
	}
}

// ProjectPath returns the managed project path.
func (m *Manager) ProjectPath() string {
	return m.projectPath
}

// ListEnvs returns the environment names with a config file, sorted.
func (m *Manager) ListEnvs() ([]string, error) {
	entries, err := os.ReadDir(ConfigsDir(m.projectPath))
	if os.IsNotExist(err) {
		return nil, engine.NewUserError(SourceEnvironment, engine.ErrCodePathNotExist,
			fmt.Sprintf("path %s does not exist", ConfigsDir(m.projectPath)))
	}
	if err != nil {
		return nil, readError(ConfigsDir(m.projectPath), err)
	}

	var envs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "config.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		env := strings.TrimSuffix(strings.TrimPrefix(name, "config."), ".json")
		if envNamePattern.MatchString(env) {
			envs = append(envs, env)
		}
	}
	sort.Strings(envs)
	return envs, nil
}

// CreateEnv writes the config file of a new environment.
func (m *Manager) CreateEnv(env string, config map[string]interface{}) error {
	if !envNamePattern.MatchString(env) {
		return engine.InvalidInputError(fmt.Sprintf("invalid environment name %q", env)).
			WithHint("use letters, digits, '-' and '_' only")
	}
	path := ConfigFile(m.projectPath, env)
	if _, err := os.Stat(path); err == nil {
		return engine.InvalidInputError(fmt.Sprintf("environment %s already exists", env))
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	if err := os.MkdirAll(ConfigsDir(m.projectPath), 0755); err != nil {
		return writeError(ConfigsDir(m.projectPath), err)
	}
	if err := writeJSON(path, config); err != nil {
		return err
	}
	m.logger.Debug().Str("env", env).Str("path", path).Msg("created environment")
	return nil
}

// LoadEnvInfo reads the config and state of env and resolves secret
// placeholders. An environment that was never provisioned has empty state.
func (m *Manager) LoadEnvInfo(env string) (*engine.EnvInfo, error) {
	if env == "" {
		return nil, envNotSpecified()
	}

	config := map[string]interface{}{}
	if err := readJSON(ConfigFile(m.projectPath, env), &config); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, envNotFound(env)
		}
		return nil, err
	}

	state := engine.EnvState{}
	if err := readJSON(StateFile(m.projectPath, env), &state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	userdata, err := readUserData(UserDataFile(m.projectPath, env))
	if err != nil {
		return nil, readError(UserDataFile(m.projectPath, env), err)
	}
	if err := restoreSecrets(state, userdata, m.crypto); err != nil {
		return nil, engine.NewUserError(SourceEnvironment, engine.ErrCodeInvalidEnvFile,
			"failed to decrypt environment secrets").WithCause(err)
	}

	return &engine.EnvInfo{EnvName: env, Config: config, State: state}, nil
}

// WriteEnvState persists state for env and returns the state file path.
// Secret fields are moved to the userdata file. state is not modified.
func (m *Manager) WriteEnvState(env string, state engine.EnvState) (string, error) {
	if env == "" {
		return "", envNotSpecified()
	}
	if err := os.MkdirAll(StatesDir(m.projectPath), 0755); err != nil {
		return "", writeError(StatesDir(m.projectPath), err)
	}

	out := state.Clone()
	if out == nil {
		out = engine.EnvState{}
	}

	userdataPath := UserDataFile(m.projectPath, env)
	userdata, err := readUserData(userdataPath)
	if err != nil {
		return "", readError(userdataPath, err)
	}
	if err := splitSecrets(out, userdata, m.crypto); err != nil {
		return "", err
	}
	if len(userdata) > 0 {
		if err := writeUserData(userdataPath, userdata); err != nil {
			return "", writeError(userdataPath, err)
		}
	}

	path := StateFile(m.projectPath, env)
	if err := writeJSON(path, out); err != nil {
		return "", err
	}
	return path, nil
}

// ReadEnvState returns the raw state file of env, placeholders included.
// It reports why the state is unavailable: no project metadata, env not
// specified, unknown env, never provisioned or unreadable.
func (m *Manager) ReadEnvState(env string) (map[string]interface{}, error) {
	if env == "" {
		return nil, envNotSpecified()
	}

	envs, err := m.ListEnvs()
	if err != nil {
		if errors.Is(err, engine.ErrPathNotExist) {
			return nil, engine.NewUserError(SourceEnvironment, engine.ErrCodeNotSupportedProjectType,
				"current folder is not a supported project").
				WithHint("run the command inside a project created by 'fx new'")
		}
		return nil, err
	}
	found := false
	for _, e := range envs {
		if e == env {
			found = true
			break
		}
	}
	if !found {
		return nil, envNotFound(env)
	}

	path := StateFile(m.projectPath, env)
	if _, err := os.Stat(path); err != nil {
		return nil, engine.NewUserError(SourceEnvironment, engine.ErrCodeEnvNotProvisioned,
			fmt.Sprintf("environment %s is not provisioned", env)).
			WithHint(fmt.Sprintf("run 'fx provision --env %s' first", env))
	}

	state := map[string]interface{}{}
	if err := readJSON(path, &state); err != nil {
		return nil, engine.NewUserError(SourceEnvironment, engine.ErrCodeInvalidEnvFile,
			"failed to read env state").WithCause(err).WithDetail("path", path)
	}
	return state, nil
}

func envNotSpecified() *engine.FxError {
	return engine.NewUserError(SourceEnvironment, engine.ErrCodeEnvNotSpecified, "environment is not specified").
		WithHint("pass --env")
}

func envNotFound(env string) *engine.FxError {
	return engine.NewUserError(SourceEnvironment, engine.ErrCodeEnvNotFound,
		fmt.Sprintf("environment %s is not found", env)).
		WithHint("run 'fx env list' to see the available environments")
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return readError(path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return engine.NewUserError(SourceEnvironment, engine.ErrCodeInvalidEnvFile,
			fmt.Sprintf("%s is not valid JSON", path)).WithCause(err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return writeError(path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return writeError(path, err)
	}
	return nil
}

func readError(path string, err error) *engine.FxError {
	return engine.NewSystemError(SourceEnvironment, engine.ErrCodeReadFile,
		fmt.Sprintf("failed to read %s", path)).WithCause(err)
}

func writeError(path string, err error) *engine.FxError {
	return engine.NewSystemError(SourceEnvironment, engine.ErrCodeWriteFile,
		fmt.Sprintf("failed to write %s", path)).WithCause(err)
}
