// Package config resolves where investcalc keeps its data and the user
// settings stored in config.json.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	appName       = "InvestCalc"
	defaultDBName = "ledger.db"

	EnvDataDir     = "INVESTCALC_DATA_DIR"
	EnvDBPath      = "INVESTCALC_DB_PATH"
	EnvEODHDAPIKey = "EODHD_API_KEY"
)

// Defaults for unset quote settings.
const (
	DefaultQuoteTimeout  = 15 * time.Second
	DefaultQuoteCacheTTL = 5 * time.Minute
)

// UserConfig is the content of config.json.
type UserConfig struct {
	DBName          string `json:"db_name"`
	DataDir         string `json:"data_dir"`
	ImportDelimiter string `json:"import_delimiter,omitempty"`
	EODHDAPIKey     string `json:"eodhd_api_key,omitempty"`
	// QuoteTimeoutSeconds bounds a single price fetch.
	QuoteTimeoutSeconds int `json:"quote_timeout_seconds,omitempty"`
	// QuoteCacheTTLSeconds is how long fetched prices are reused; negative
	// disables caching.
	QuoteCacheTTLSeconds int `json:"quote_cache_ttl_seconds,omitempty"`
}

var (
	runtimeDataDir string
	runtimeDBPath  string
	runtimePort    = 8000
)

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// SetRuntimeDataDir overrides the data directory, typically from a flag.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

// SetRuntimeDBPath overrides the database path, typically from a flag.
func SetRuntimeDBPath(path string) {
	runtimeDBPath = path
}

func SetRuntimePort(port int) {
	if port > 0 {
		runtimePort = port
	}
}

func GetRuntimePort() int {
	return runtimePort
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, appName), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "investcalc"), nil
	}
	return filepath.Join(configDir, "investcalc"), nil
}

// ConfigPath returns the location of config.json.
func ConfigPath() (string, error) {
	dir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// localConfigPath returns a config.json next to the working directory or the
// executable, if one exists.
func localConfigPath() string {
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func IsFirstRun() bool {
	path, err := ConfigPath()
	if err != nil {
		return true
	}
	_, err = os.Stat(path)
	return err != nil
}

// LoadUserConfig reads config.json from the app config dir, falling back to
// a local config.json, and fills defaults. A missing or unreadable file
// yields the defaults.
func LoadUserConfig() UserConfig {
	cfg := UserConfig{DBName: defaultDBName}
	pathToUse := ""
	if path, err := ConfigPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			pathToUse = path
		}
	}
	if pathToUse == "" {
		pathToUse = localConfigPath()
	}
	if pathToUse == "" {
		return cfg
	}
	data, err := os.ReadFile(pathToUse)
	if err != nil {
		return cfg
	}
	loaded := cfg
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg
	}
	if strings.TrimSpace(loaded.DBName) == "" {
		loaded.DBName = defaultDBName
	}
	return loaded
}

// SaveUserConfig writes cfg to the app config dir, or to the working
// directory when useAppConfig is false.
func SaveUserConfig(cfg UserConfig, useAppConfig bool) error {
	var path string
	if useAppConfig {
		appPath, err := ConfigPath()
		if err != nil {
			return err
		}
		path = appPath
	} else {
		path = localConfigPath()
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.New("cannot determine config path")
			}
			path = filepath.Join(cwd, "config.json")
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDataDir resolves the data directory: runtime override, then
// INVESTCALC_DATA_DIR, then config, then the app config dir.
func GetDataDir() (string, error) {
	if runtimeDataDir != "" {
		return ensureDir(runtimeDataDir)
	}
	if envDir := os.Getenv(EnvDataDir); envDir != "" {
		return ensureDir(envDir)
	}
	if cfg := LoadUserConfig(); cfg.DataDir != "" {
		return ensureDir(cfg.DataDir)
	}
	defaultDir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	return ensureDir(defaultDir)
}

// GetDBPath resolves the ledger database path: runtime override, then
// INVESTCALC_DB_PATH, then data dir plus db_name.
func GetDBPath() (string, error) {
	if runtimeDBPath != "" {
		return runtimeDBPath, nil
	}
	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		return envPath, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, LoadUserConfig().DBName), nil
}

// GetLogDir returns the directory for daily log files.
func GetLogDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "logs"), nil
}

// Delimiter returns the configured field separator for batch import
// and export. Escapes like `\t` are unquoted; the default is a tab.
func (c UserConfig) Delimiter() string {
	d := c.ImportDelimiter
	if d == "" {
		return "\t"
	}
	return strings.NewReplacer(`\t`, "\t", `\s`, " ").Replace(d)
}

// APIKey returns the EODHD key, EODHD_API_KEY taking precedence.
func (c UserConfig) APIKey() string {
	if key := strings.TrimSpace(os.Getenv(EnvEODHDAPIKey)); key != "" {
		return key
	}
	return strings.TrimSpace(c.EODHDAPIKey)
}

// QuoteTimeout returns the per-fetch timeout.
func (c UserConfig) QuoteTimeout() time.Duration {
	if c.QuoteTimeoutSeconds <= 0 {
		return DefaultQuoteTimeout
	}
	return time.Duration(c.QuoteTimeoutSeconds) * time.Second
}

// QuoteCacheTTL returns the price cache lifetime; negative disables caching.
func (c UserConfig) QuoteCacheTTL() time.Duration {
	switch {
	case c.QuoteCacheTTLSeconds < 0:
		return -1
	case c.QuoteCacheTTLSeconds == 0:
		return DefaultQuoteCacheTTL
	}
	return time.Duration(c.QuoteCacheTTLSeconds) * time.Second
}
