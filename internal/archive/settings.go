package archive

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bhm-spectra/specviewer/internal/config"
)

// DefaultSettingsPath is the default location of the engine settings file.
const DefaultSettingsPath = ".specviewer.yaml"

// SettingsPathEnvVar names the environment variable that overrides DefaultSettingsPath.
const SettingsPathEnvVar = "SPECVIEWER_CONFIG_PATH"

// DefaultFPSCutoffMJD is the first night of robotic (FPS) observations.
// Earlier epochs were taken with plug plates.
const DefaultFPSCutoffMJD = 59550

// Target names one known-good spectrum used to verify credentials at startup.
type Target struct {
	Field  string `yaml:"field"`
	MJD    string `yaml:"mjd"`
	Object string `yaml:"object"`
}

// Settings holds the optional engine settings read from .specviewer.yaml.
//
// Example file:
//
//	branches:
//	  sdssv: [master, v6_2_1, v6_1_3]
//	fps_cutoff_mjd: 59550
//	verification:
//	  field: "112359"
//	  mjd: "60086"
//	  object: "27021600949438682"
type Settings struct {
	Branches BranchLists `yaml:"branches"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	FPSCutoffMJD int    `yaml:"fps_cutoff_mjd"`
	Verification Target `yaml:"verification"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Branches:     DefaultBranchLists(),
		FPSCutoffMJD: DefaultFPSCutoffMJD,
		Verification: Target{Field: "112359", MJD: "60086", Object: "27021600949438682"},
	}
}

// LoadSettings reads engine settings from a YAML file.
//
// Behavior:
//   - Returns defaults (not error) if the file doesn't exist
//   - Returns defaults and logs a warning if the file is unreadable or the YAML is invalid
//   - Fields left out of the file keep their defaults
func LoadSettings(path string) (*Settings, error) {
	defaults := DefaultSettings()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Settings file not found, using defaults", slog.String("path", path))

			return defaults, nil
		}

		slog.Warn("Failed to read settings file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaults, nil
	}

	if len(data) == 0 {
		return defaults, nil
	}

	var parsed Settings
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		slog.Warn("Failed to parse settings file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaults, nil
	}

	return mergeSettings(defaults, &parsed), nil
}

// LoadSettingsFromEnv loads settings from SPECVIEWER_CONFIG_PATH, or .specviewer.yaml if unset.
func LoadSettingsFromEnv() (*Settings, error) {
	return LoadSettings(config.GetEnvStr(SettingsPathEnvVar, DefaultSettingsPath))
}

func mergeSettings(defaults, parsed *Settings) *Settings {
	merged := *defaults

	if len(parsed.Branches.Legacy) > 0 {
		merged.Branches.Legacy = parsed.Branches.Legacy
	}

	if len(parsed.Branches.BOSS) > 0 {
		merged.Branches.BOSS = parsed.Branches.BOSS
	}

	if len(parsed.Branches.SDSSV) > 0 {
		merged.Branches.SDSSV = parsed.Branches.SDSSV
	}

	if len(parsed.Branches.Stacks) > 0 {
		merged.Branches.Stacks = parsed.Branches.Stacks
	}

	if parsed.FPSCutoffMJD > 0 {
		merged.FPSCutoffMJD = parsed.FPSCutoffMJD
	}

	if parsed.Verification.Object != "" {
		merged.Verification = parsed.Verification
	}

	return &merged
}
