package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var Env = map[string]string{
	"SITESAVE_SITES":   os.Getenv("SITESAVE_SITES"),
	"SITESAVE_WGET":    os.Getenv("SITESAVE_WGET"),
	"SITESAVE_DELAY":   os.Getenv("SITESAVE_DELAY"),
	"SITESAVE_JOB_TTL": os.Getenv("SITESAVE_JOB_TTL"),
	"SITESAVE_TIMEOUT": os.Getenv("SITESAVE_TIMEOUT"),
}

// GetSitesLocation returns the directory holding mirror scratch space and
// finished archives. Settings file wins over the environment.
func GetSitesLocation() string {
	if settings := loadUserSettings(); settings != nil && settings.SitesLocation != "" {
		return settings.SitesLocation
	}
	if custom := os.Getenv("SITESAVE_SITES"); custom != "" {
		return custom
	}
	return filepath.Join(os.TempDir(), "sitesave")
}

// GetWgetPath returns the mirroring binary to invoke
func GetWgetPath() string {
	if p := os.Getenv("SITESAVE_WGET"); p != "" {
		return p
	}
	return "wget"
}

// GetRequestDelay returns the inter-request politeness delay in whole seconds
func GetRequestDelay() time.Duration {
	if settings := loadUserSettings(); settings != nil && settings.RequestDelaySeconds > 0 {
		return time.Duration(settings.RequestDelaySeconds) * time.Second
	}
	return secondsEnv("SITESAVE_DELAY", 0)
}

// GetJobTTL returns how long terminal job records and their archives are kept
func GetJobTTL() time.Duration {
	return secondsEnv("SITESAVE_JOB_TTL", 3600)
}

// GetPipelineTimeout returns the per-job mirror deadline
func GetPipelineTimeout() time.Duration {
	return secondsEnv("SITESAVE_TIMEOUT", 900)
}

func secondsEnv(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}

// UserSettings represents the user's personal settings
type UserSettings struct {
	SitesLocation       string `json:"sitesLocation"`
	RequestDelaySeconds int    `json:"requestDelaySeconds"`
}

// SettingsFilePath returns the path to the settings file
func SettingsFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sitesave-settings.json")
}

// loadUserSettings loads the settings file, or nil when absent or unreadable
func loadUserSettings() *UserSettings {
	data, err := os.ReadFile(SettingsFilePath())
	if err != nil {
		return nil
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil
	}
	return &settings
}
