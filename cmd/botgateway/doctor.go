package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"botgateway/internal/config"
	"botgateway/internal/domain"
	"botgateway/internal/metrics"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the gateway installation",
		Long: `Verifies the configuration, the database and every stored channel's
credentials. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("botgateway doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'botgateway init' to create a default configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			checkAppSecrets(&r, cfg)

			if err := checkPort(cfg.Server.Port); err != nil {
				r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			st, err := openStore(cfg)
			if err != nil {
				r.fail("Database", err.Error())
				return r.summary()
			}
			defer st.Close()
			if err := st.Ping(cmd.Context()); err != nil {
				r.fail("Database", err.Error())
				return r.summary()
			}
			r.pass("Database", cfg.Store.DBPath)

			channels, err := st.ListChannels(cmd.Context(), "")
			if err != nil {
				r.fail("Channels", err.Error())
				return r.summary()
			}
			if len(channels) == 0 {
				r.warn("Channels", "none configured (see 'botgateway channel add')")
				return r.summary()
			}

			gw, err := buildGateway(cfg, st, metrics.NewGateway(nil))
			if err != nil {
				r.fail("Gateway", err.Error())
				return r.summary()
			}
			for i := range channels {
				ch := &channels[i]
				label := fmt.Sprintf("Channel %s", ch.ID)
				if ch.Status == domain.StatusInactive {
					r.warn(label, "inactive, skipped")
					continue
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout())
				ok, err := gw.Initialize(ctx, ch)
				cancel()
				switch {
				case err != nil:
					r.fail(label, fmt.Sprintf("%s: %v", ch.Type, err))
				case !ok:
					r.fail(label, fmt.Sprintf("%s: credentials rejected", ch.Type))
				default:
					r.pass(label, string(ch.Type))
				}
			}
			return r.summary()
		},
	}
}

// checkAppSecrets warns about webhook types that cannot be verified.
func checkAppSecrets(r *report, cfg *config.Config) {
	for t, app := range appCredentials(cfg) {
		secret := app.AppSecret
		if t == domain.ChannelDiscord {
			secret = app.PublicKey
		}
		if secret == "" {
			r.warn("Webhook "+string(t), "no app-level secret; only per-channel webhooks will verify")
		}
	}
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned == 0 {
		fmt.Printf("\nAll checks passed.\n")
	}
	return nil
}
