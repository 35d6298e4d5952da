package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=verbose")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_DiscordLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.MessagesPerSecond = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for messagesPerSecond=0")
	}

	cfg = Defaults()
	cfg.Discord.MessagesPerMinute = 2
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for perMinute < perSecond")
	}

	cfg = Defaults()
	cfg.Discord.PublicKey = "abc"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for short public key")
	}
}

func TestValidate_HTTPTimeouts(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.MediaTimeoutSeconds = 10
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for media timeout below request timeout")
	}

	cfg = Defaults()
	cfg.HTTP.MaxRetries = 11
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxRetries=11")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Store.DBPath = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.port", "store.dbPath"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.Meta.APIVersion = "v19.0"
			original.Discord.MessagesPerMinute = 60

			if err := Save(path, original); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Meta.APIVersion != "v19.0" || loaded.Discord.MessagesPerMinute != 60 {
				t.Fatalf("round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yml")
	content := "server:\n  port: 9000\ndiscord:\n  messagesPerSecond: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 || cfg.Discord.MessagesPerSecond != 2 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.Discord.MessagesPerMinute != 120 || cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"http": {"maxRetries": 50}}`), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"server": {"port": 9000}, "meta": {"appSecret": "from-file"}}`), 0o644)

	t.Setenv("BOTGATEWAY_SERVER_PORT", "9100")
	t.Setenv("BOTGATEWAY_META_APP_SECRET", "from-env")
	t.Setenv("BOTGATEWAY_DISCORD_MESSAGES_PER_MINUTE", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Meta.AppSecret != "from-env" {
		t.Errorf("expected env app secret, got %q", cfg.Meta.AppSecret)
	}
	if cfg.Discord.MessagesPerMinute != 30 {
		t.Errorf("expected 30/min, got %d", cfg.Discord.MessagesPerMinute)
	}
	// Untouched by the environment.
	if cfg.Meta.APIVersion != "v18.0" {
		t.Errorf("expected default api version, got %q", cfg.Meta.APIVersion)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_GATEWAY_DB", "/tmp/test-gateway.db")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"store": {"dbPath": "${TEST_GATEWAY_DB}"}, "meta": {"verifyToken": "${UNSET_GATEWAY_TOKEN_XYZ:-fallback}"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DBPath != "/tmp/test-gateway.db" {
		t.Fatalf("expected db path substituted, got %q", cfg.Store.DBPath)
	}
	if cfg.Meta.VerifyToken != "fallback" {
		t.Fatalf("expected default applied, got %q", cfg.Meta.VerifyToken)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()
	tests := []struct {
		path string
		want any
	}{
		{"server.port", 8080},
		{"meta.apiVersion", "v18.0"},
		{"metrics.enabled", true},
	}
	for _, tt := range tests {
		got, err := GetByPath(cfg, tt.path)
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "server.nonexistent"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "metrics.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "http.maxRetries", "5"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "meta.appSecret", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if cfg.Metrics.Enabled || cfg.HTTP.MaxRetries != 5 || cfg.Meta.AppSecret != "s3cret" {
		t.Fatalf("values not applied: %+v", cfg)
	}
}

func TestSetByPath_DigitsIntoStringField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "meta.verifyToken", "12345"); err != nil {
		t.Fatal(err)
	}
	if cfg.Meta.VerifyToken != "12345" {
		t.Fatalf("expected verify token 12345, got %q", cfg.Meta.VerifyToken)
	}
	if err := SetByPath(cfg, "whatsapp.appSecret", "00998877"); err != nil {
		t.Fatal(err)
	}
	if cfg.WhatsApp.AppSecret != "00998877" {
		t.Fatalf("leading zeros lost: %q", cfg.WhatsApp.AppSecret)
	}
	if err := SetByPath(cfg, "meta.requestsPerSecond", "2.5"); err != nil {
		t.Fatal(err)
	}
	if cfg.Meta.RequestsPerSecond != 2.5 {
		t.Fatalf("expected 2.5, got %v", cfg.Meta.RequestsPerSecond)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	tests := []struct {
		name, path string
		value      any
	}{
		{"non-numeric int", "server.port", "eighty"},
		{"non-boolean", "metrics.enabled", "maybe"},
		{"section", "server", "x"},
		{"unknown key", "server.nope", "1"},
		{"wrong go type", "server.port", []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SetByPath(Defaults(), tt.path, tt.value); err == nil {
				t.Fatalf("expected error setting %s", tt.path)
			}
		})
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Meta.AppSecret = "abcdefghijklmnop"
	cfg.WhatsApp.VerifyToken = "short"
	cfg.Discord.PublicKey = strings.Repeat("a", 64)

	s := Sanitize(cfg)
	if s.Meta.AppSecret != "abcd****mnop" {
		t.Errorf("unexpected mask: %q", s.Meta.AppSecret)
	}
	if s.WhatsApp.VerifyToken != "***" {
		t.Errorf("short secret should be fully masked, got %q", s.WhatsApp.VerifyToken)
	}
	if s.WhatsApp.AppSecret != "" {
		t.Errorf("empty secret should stay empty, got %q", s.WhatsApp.AppSecret)
	}
	if s.Discord.PublicKey != cfg.Discord.PublicKey {
		t.Error("public key should not be masked")
	}
	if cfg.Meta.AppSecret != "abcdefghijklmnop" {
		t.Error("Sanitize must not modify the original")
	}
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, key := range []string{"server.port", "discord.messagesPerMinute", "http.mediaTimeoutSeconds", "store.dbPath", "general.logFile"} {
		if _, ok := paths[key]; !ok {
			t.Errorf("expected path %q in list", key)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GW_SET", "value")
	t.Setenv("GW_EMPTY", "")
	os.Unsetenv("GW_UNSET_XYZ")

	tests := []struct {
		name, in, want string
	}{
		{"simple", `"${GW_SET}"`, `"value"`},
		{"default unused", `"${GW_SET:-x}"`, `"value"`},
		{"default used", `"${GW_UNSET_XYZ:-8080}"`, `"8080"`},
		{"empty uses default", `"${GW_EMPTY:-fallback}"`, `"fallback"`},
		{"unset kept", `"${GW_UNSET_XYZ}"`, `"${GW_UNSET_XYZ}"`},
		{"bare dollar", `"$HOME stays"`, `"$HOME stays"`},
		{"multiple", `"${GW_SET}:${GW_UNSET_XYZ:-1}"`, `"value:1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnvVars(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHTTPConfig_Durations(t *testing.T) {
	h := Defaults().HTTP
	if h.Timeout().Seconds() != 30 || h.MediaTimeout().Seconds() != 60 {
		t.Errorf("unexpected durations: %v %v", h.Timeout(), h.MediaTimeout())
	}
}
