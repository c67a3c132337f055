package environment

import (
	"fmt"
	"path/filepath"
)

const (
	// ProjectDir is the per-project metadata directory.
	ProjectDir = ".fx"

	configsDir = "configs"
	statesDir  = "states"
)

// ConfigsDir returns the directory holding project and env configs.
func ConfigsDir(projectPath string) string {
	return filepath.Join(projectPath, ProjectDir, configsDir)
}

// StatesDir returns the directory holding env state files.
func StatesDir(projectPath string) string {
	return filepath.Join(projectPath, ProjectDir, statesDir)
}

// ConfigFile returns the config file of env.
func ConfigFile(projectPath, env string) string {
	return filepath.Join(ConfigsDir(projectPath), fmt.Sprintf("config.%s.json", env))
}

// StateFile returns the state file of env.
func StateFile(projectPath, env string) string {
	return filepath.Join(StatesDir(projectPath), fmt.Sprintf("state.%s.json", env))
}

// UserDataFile returns the secrets file of env.
func UserDataFile(projectPath, env string) string {
	return filepath.Join(StatesDir(projectPath), env+".userdata")
}
