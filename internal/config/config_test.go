package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Loop.MaxCycles != 50 {
		t.Errorf("MaxCycles = %d, want 50", cfg.Loop.MaxCycles)
	}
	if cfg.Tools.DispatchTimeout != 60*time.Second {
		t.Errorf("DispatchTimeout = %v", cfg.Tools.DispatchTimeout)
	}
	if cfg.Model.Name == "" {
		t.Error("default model name is empty")
	}
	if cfg.Trace.Brokers != "" {
		t.Error("tracing must be disabled by default")
	}
}

func TestConfigPathRespectsExplicitConfigAndHome(t *testing.T) {
	t.Setenv("CODEWRIGHT_HOME", "/srv/cwhome")
	t.Setenv("CODEWRIGHT_CONFIG", "~/.codewright/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join("/srv/cwhome", ".codewright", "custom.json") {
		t.Fatalf("unexpected config path: %q", path)
	}
}

func TestLoadReadsFileAndAppliesEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_HOME", "")
	t.Setenv("CODEWRIGHT_CONFIG", "")

	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	body := `{
  "model": {"name": "file-model", "maxTokens": 2048},
  "loop": {"maxCycles": 7},
  "trace": {"brokers": "k1:9092, k2:9092"}
}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CODEWRIGHT_MODEL_NAME", "env-model")
	t.Setenv("CODEWRIGHT_LOOP_MAX_CYCLES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "env-model" {
		t.Errorf("env override lost: model = %q", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 2048 {
		t.Errorf("file value lost: maxTokens = %d", cfg.Model.MaxTokens)
	}
	if cfg.Loop.MaxCycles != 7 {
		t.Errorf("maxCycles = %d, want 7", cfg.Loop.MaxCycles)
	}
	if got := cfg.TraceBrokers(); len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("TraceBrokers() = %v", got)
	}
	// Defaults survive for groups the file does not mention.
	if cfg.Tools.DispatchTimeout != 60*time.Second {
		t.Errorf("DispatchTimeout = %v", cfg.Tools.DispatchTimeout)
	}
}

func TestLoadSubstitutesEnvReferences(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_HOME", "")
	t.Setenv("CODEWRIGHT_CONFIG", "")
	t.Setenv("MY_SECRET_KEY", "sk-test-123")

	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	body := `{"provider": {"apiKey": "${MY_SECRET_KEY}"}}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test-123" {
		t.Errorf("apiKey = %q", cfg.Provider.APIKey)
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_HOME", "")
	t.Setenv("CODEWRIGHT_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := filepath.Join(home, ".codewright", "checkpoint.db")
	if cfg.Paths.CheckpointDB != want {
		t.Errorf("CheckpointDB = %q, want %q", cfg.Paths.CheckpointDB, want)
	}
}

func TestLoadFallsBackToOpenAIKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_HOME", "")
	t.Setenv("CODEWRIGHT_CONFIG", "")
	t.Setenv("CODEWRIGHT_PROVIDER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Provider.APIKey != "sk-fallback" {
		t.Errorf("apiKey = %q, want the OPENAI_API_KEY fallback", cfg.Provider.APIKey)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_HOME", "")
	t.Setenv("CODEWRIGHT_CONFIG", "")

	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"
	cfg.Loop.MaxCycles = 9
	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Model.Name != "saved-model" || loaded.Loop.MaxCycles != 9 {
		t.Errorf("round trip lost values: %+v", loaded.Model)
	}
}

func TestEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEWRIGHT_ENV_FILE", "")

	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	envBody := "CODEWRIGHT_TEST_FROM_FILE=file\nCODEWRIGHT_TEST_EXISTING=file\n# comment\nexport CODEWRIGHT_TEST_QUOTED=\"quoted value\"\n"
	if err := os.WriteFile(filepath.Join(dir, "env"), []byte(envBody), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CODEWRIGHT_TEST_EXISTING", "process")
	os.Unsetenv("CODEWRIGHT_TEST_FROM_FILE")
	os.Unsetenv("CODEWRIGHT_TEST_QUOTED")
	t.Cleanup(func() {
		os.Unsetenv("CODEWRIGHT_TEST_FROM_FILE")
		os.Unsetenv("CODEWRIGHT_TEST_QUOTED")
	})

	LoadEnvFileCandidates()

	if got := os.Getenv("CODEWRIGHT_TEST_FROM_FILE"); got != "file" {
		t.Errorf("CODEWRIGHT_TEST_FROM_FILE = %q", got)
	}
	if got := os.Getenv("CODEWRIGHT_TEST_EXISTING"); got != "process" {
		t.Errorf("process env overridden: %q", got)
	}
	if got := os.Getenv("CODEWRIGHT_TEST_QUOTED"); got != "quoted value" {
		t.Errorf("quotes not trimmed: %q", got)
	}
}
