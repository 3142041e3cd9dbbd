package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// isolateHome points every config lookup at a fresh directory.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", filepath.Join(home, "AppData"))
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvEODHDAPIKey, "")

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return home
}

func TestRuntimePort(t *testing.T) {
	orig := GetRuntimePort()
	defer SetRuntimePort(orig)

	SetRuntimePort(0)
	if got := GetRuntimePort(); got != orig {
		t.Fatalf("expected port to remain %d, got %d", orig, got)
	}

	SetRuntimePort(9090)
	if got := GetRuntimePort(); got != 9090 {
		t.Fatalf("expected port 9090, got %d", got)
	}
}

func TestRuntimeDataDirAndEnv(t *testing.T) {
	isolateHome(t)
	defer SetRuntimeDataDir("")

	tmp := t.TempDir()
	SetRuntimeDataDir(tmp)
	dir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir: %v", err)
	}
	if dir != tmp {
		t.Fatalf("expected runtime dir %q, got %q", tmp, dir)
	}

	SetRuntimeDataDir("")
	tmpEnv := filepath.Join(t.TempDir(), "data")
	t.Setenv(EnvDataDir, tmpEnv)
	dir, err = GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir env: %v", err)
	}
	if dir != tmpEnv {
		t.Fatalf("expected env dir %q, got %q", tmpEnv, dir)
	}
	if _, err := os.Stat(tmpEnv); err != nil {
		t.Fatalf("expected env dir to be created: %v", err)
	}
}

func TestGetDBPathPrecedence(t *testing.T) {
	home := isolateHome(t)
	defer SetRuntimeDBPath("")

	dataDir := filepath.Join(home, "data")
	if err := SaveUserConfig(UserConfig{DBName: "config.db", DataDir: dataDir}, true); err != nil {
		t.Fatalf("SaveUserConfig: %v", err)
	}
	path, err := GetDBPath()
	if err != nil {
		t.Fatalf("GetDBPath: %v", err)
	}
	if path != filepath.Join(dataDir, "config.db") {
		t.Fatalf("unexpected config path %q", path)
	}

	envPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv(EnvDBPath, envPath)
	if path, _ = GetDBPath(); path != envPath {
		t.Fatalf("expected env path %q, got %q", envPath, path)
	}

	SetRuntimeDBPath("/tmp/flag.db")
	if path, _ = GetDBPath(); path != "/tmp/flag.db" {
		t.Fatalf("expected flag path, got %q", path)
	}
}

func TestIsMacOSWindows(t *testing.T) {
	if IsMacOS() != (runtime.GOOS == "darwin") {
		t.Fatalf("IsMacOS mismatch")
	}
	if IsWindows() != (runtime.GOOS == "windows") {
		t.Fatalf("IsWindows mismatch")
	}
}

func TestIsFirstRunAndLoadSaveConfig(t *testing.T) {
	home := isolateHome(t)

	if !IsFirstRun() {
		t.Fatalf("expected first run with no config")
	}
	if got := LoadUserConfig(); got.DBName != defaultDBName {
		t.Fatalf("expected default db name, got %+v", got)
	}

	cfg := UserConfig{
		DBName:               "my.db",
		DataDir:              filepath.Join(home, "data"),
		ImportDelimiter:      ";",
		EODHDAPIKey:          "file-key",
		QuoteTimeoutSeconds:  3,
		QuoteCacheTTLSeconds: -1,
	}
	if err := SaveUserConfig(cfg, true); err != nil {
		t.Fatalf("SaveUserConfig: %v", err)
	}
	if IsFirstRun() {
		t.Fatalf("expected not first run after save")
	}

	loaded := LoadUserConfig()
	if loaded != cfg {
		t.Fatalf("loaded config mismatch: %+v", loaded)
	}
}

func TestLoadUserConfigLocalFile(t *testing.T) {
	isolateHome(t)
	if err := os.WriteFile("config.json", []byte(`{"db_name":"local.db"}`), 0o644); err != nil {
		t.Fatalf("write local config: %v", err)
	}
	if got := LoadUserConfig(); got.DBName != "local.db" {
		t.Fatalf("expected local config, got %+v", got)
	}
}

func TestLoadUserConfigInvalidJSON(t *testing.T) {
	isolateHome(t)
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"db_name":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadUserConfig(); got.DBName != defaultDBName {
		t.Fatalf("expected defaults for broken config, got %+v", got)
	}
}

func TestSaveUserConfigLocal(t *testing.T) {
	isolateHome(t)
	if err := SaveUserConfig(UserConfig{DBName: "local.db"}, false); err != nil {
		t.Fatalf("SaveUserConfig local: %v", err)
	}
	if _, err := os.Stat("config.json"); err != nil {
		t.Fatalf("expected local config file: %v", err)
	}
}

func TestUserConfigAccessors(t *testing.T) {
	isolateHome(t)

	var cfg UserConfig
	if cfg.Delimiter() != "\t" || cfg.QuoteTimeout() != DefaultQuoteTimeout || cfg.QuoteCacheTTL() != DefaultQuoteCacheTTL {
		t.Fatalf("unexpected defaults")
	}
	cfg = UserConfig{ImportDelimiter: `\t|`, QuoteTimeoutSeconds: 2, QuoteCacheTTLSeconds: 30, EODHDAPIKey: " file "}
	if cfg.Delimiter() != "\t|" {
		t.Fatalf("expected unescaped delimiter, got %q", cfg.Delimiter())
	}
	if cfg.QuoteTimeout() != 2*time.Second || cfg.QuoteCacheTTL() != 30*time.Second {
		t.Fatalf("unexpected durations")
	}
	if cfg.APIKey() != "file" {
		t.Fatalf("expected file key, got %q", cfg.APIKey())
	}
	t.Setenv(EnvEODHDAPIKey, "env")
	if cfg.APIKey() != "env" {
		t.Fatalf("expected env key to win")
	}
	if (UserConfig{QuoteCacheTTLSeconds: -5}).QuoteCacheTTL() >= 0 {
		t.Fatalf("negative ttl must disable caching")
	}
}

func TestGetLogDir(t *testing.T) {
	isolateHome(t)
	defer SetRuntimeDataDir("")
	dir := t.TempDir()
	SetRuntimeDataDir(dir)
	got, err := GetLogDir()
	if err != nil {
		t.Fatalf("GetLogDir: %v", err)
	}
	if got != filepath.Join(dir, "logs") {
		t.Fatalf("unexpected log dir %q", got)
	}
}
