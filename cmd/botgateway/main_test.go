package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"botgateway/internal/config"
	"botgateway/internal/domain"
)

func TestAppCredentials_WhatsAppFallsBackToMeta(t *testing.T) {
	cfg := config.Defaults()
	cfg.Meta.AppSecret = "meta-secret"
	cfg.Meta.VerifyToken = "meta-verify"
	cfg.WhatsApp.VerifyToken = "wa-verify"
	cfg.Discord.PublicKey = "pk"

	apps := appCredentials(cfg)
	if apps[domain.ChannelInstagram].AppSecret != "meta-secret" {
		t.Errorf("instagram should use the meta app: %+v", apps[domain.ChannelInstagram])
	}
	wa := apps[domain.ChannelWhatsApp]
	if wa.AppSecret != "meta-secret" || wa.VerifyToken != "wa-verify" {
		t.Errorf("unexpected whatsapp credentials: %+v", wa)
	}
	if apps[domain.ChannelDiscord].PublicKey != "pk" {
		t.Errorf("discord public key not mapped")
	}
}

func TestServerConfig_UsesServerSection(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.ReadTimeoutSeconds = 7
	cfg.HTTP.TimeoutSeconds = 45
	cfg.Server.MaxBodyBytes = 2048
	cfg.Metrics.Endpoint = "/prom"

	sc := serverConfig(cfg, nil, nil)
	if sc.ReadTimeout != 7*time.Second {
		t.Errorf("read timeout should come from server.readTimeoutSeconds, got %v", sc.ReadTimeout)
	}
	if sc.MaxBodyBytes != 2048 || sc.Addr != "0.0.0.0:8080" {
		t.Errorf("unexpected server config: %+v", sc)
	}
	if sc.Metrics == nil || sc.MetricsPath != "/prom" {
		t.Errorf("metrics should be mounted at /prom")
	}

	cfg.Metrics.Enabled = false
	if sc := serverConfig(cfg, nil, nil); sc.Metrics != nil {
		t.Error("disabled metrics should not be mounted")
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	l, closer, err := newLogger(config.GeneralConfig{LogLevel: "debug", LogFormat: "json", LogFile: path})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hello", "channel", "discord")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Errorf("expected a JSON log line, got %q", data)
	}
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestLoadDotEnv_SetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("BOTGATEWAY_TEST_DOTENV=loaded\n"), 0o644)
	t.Setenv("BOTGATEWAY_TEST_DOTENV", "")
	os.Unsetenv("BOTGATEWAY_TEST_DOTENV")

	if err := loadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("BOTGATEWAY_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}
