package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/environment"
)

// SourceProject is the error source of this package.
const SourceProject = "project"

// SettingsVersion is written into new project settings.
const SettingsVersion = "2.0.0"

const settingsFileName = "projectSettings.json"

var appNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9 _-]*$`)

// SettingsFile returns the project settings path.
func SettingsFile(projectPath string) string {
	return filepath.Join(environment.ConfigsDir(projectPath), settingsFileName)
}

// IsProject reports whether projectPath holds project settings.
func IsProject(projectPath string) bool {
	_, err := os.Stat(SettingsFile(projectPath))
	return err == nil
}

// NewSettings returns settings for a new, empty project.
func NewSettings(appName, language string) (*engine.ProjectSettings, error) {
	if !appNamePattern.MatchString(appName) {
		return nil, engine.InvalidInputError(fmt.Sprintf("invalid app name %q", appName)).
			WithHint("start with a letter and use letters, digits, spaces, '-' and '_'")
	}
	return &engine.ProjectSettings{
		AppName:             appName,
		ProjectID:           uuid.New().String(),
		Version:             SettingsVersion,
		ProgrammingLanguage: language,
		Solution: engine.SolutionSettings{
			Name:     engine.SolutionNamespace,
			Version:  "1.0.0",
			HostType: "Azure",
		},
	}, nil
}

// LoadSettings reads the project settings of projectPath.
func LoadSettings(projectPath string) (*engine.ProjectSettings, error) {
	if _, err := os.Stat(filepath.Join(projectPath, environment.ProjectDir)); err != nil {
		return nil, engine.NewUserError(SourceProject, engine.ErrCodeNotSupportedProjectType,
			fmt.Sprintf("%s is not an fx project", projectPath)).
			WithHint("run 'fx new' or change to the project directory")
	}

	path := SettingsFile(projectPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, engine.NewUserError(SourceProject, engine.ErrCodePathNotExist,
			fmt.Sprintf("path %s does not exist", path))
	}
	if err != nil {
		return nil, engine.NewSystemError(SourceProject, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to read %s", path)).WithCause(err)
	}

	var settings engine.ProjectSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, engine.NewUserError(SourceProject, engine.ErrCodeInvalidProjectSettings,
			fmt.Sprintf("failed to parse %s", path)).WithCause(err)
	}
	return &settings, nil
}

// SaveSettings writes the project settings of projectPath.
func SaveSettings(projectPath string, settings *engine.ProjectSettings) error {
	if settings == nil {
		return engine.InvalidInputError("project settings are missing")
	}
	return writeJSON(SettingsFile(projectPath), settings)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return engine.NewSystemError(SourceProject, engine.ErrCodeWriteFile,
			fmt.Sprintf("failed to encode %s", path)).WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return writeError(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return writeError(path, err)
	}
	return nil
}

func writeError(path string, err error) *engine.FxError {
	return engine.NewSystemError(SourceProject, engine.ErrCodeWriteFile,
		fmt.Sprintf("failed to write %s", path)).WithCause(err)
}

// Init creates the .fx layout of a new project and writes its settings.
// An existing project is rejected.
func Init(projectPath string, settings *engine.ProjectSettings) error {
	if IsProject(projectPath) {
		return engine.InvalidInputError(fmt.Sprintf("%s already contains a project", projectPath)).
			WithHint("choose an empty folder")
	}
	for _, dir := range []string{environment.ConfigsDir(projectPath), environment.StatesDir(projectPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return writeError(dir, err)
		}
	}
	return SaveSettings(projectPath, settings)
}

const localSettingsFileName = "localSettings.json"

// LocalSettingsFile returns the local debug settings path.
func LocalSettingsFile(projectPath string) string {
	return filepath.Join(environment.ConfigsDir(projectPath), localSettingsFileName)
}

// LoadLocalSettings reads the local debug settings. A project that was never
// debugged locally yields empty settings.
func LoadLocalSettings(projectPath string) (engine.LocalSettings, error) {
	path := LocalSettingsFile(projectPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return engine.LocalSettings{}, nil
	}
	if err != nil {
		return nil, engine.NewSystemError(SourceProject, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to read %s", path)).WithCause(err)
	}

	local := engine.LocalSettings{}
	if err := json.Unmarshal(data, &local); err != nil {
		return nil, engine.NewUserError(SourceProject, engine.ErrCodeInvalidProjectSettings,
			fmt.Sprintf("failed to parse %s", path)).WithCause(err)
	}
	return local, nil
}

// SaveLocalSettings writes the local debug settings. Empty settings are not written.
func SaveLocalSettings(projectPath string, local engine.LocalSettings) error {
	if len(local) == 0 {
		return nil
	}
	return writeJSON(LocalSettingsFile(projectPath), local)
}
