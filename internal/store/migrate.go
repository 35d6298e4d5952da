package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is applied in order, each exactly once, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: channels, inbound_events, message_status",
		SQL: `
		CREATE TABLE IF NOT EXISTS channels (
			id             TEXT PRIMARY KEY,
			type           TEXT NOT NULL,
			name           TEXT DEFAULT '',
			credentials    TEXT DEFAULT '{}',
			webhook_secret TEXT DEFAULT '',
			status         TEXT DEFAULT 'active',
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_channels_type ON channels(type);

		CREATE TABLE IF NOT EXISTS inbound_events (
			id           TEXT PRIMARY KEY,
			channel_id   TEXT NOT NULL,
			channel_type TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			message_id   TEXT,
			sender_id    TEXT DEFAULT '',
			data         TEXT NOT NULL,
			received_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(channel_id, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_events_channel ON inbound_events(channel_id, received_at);

		CREATE TABLE IF NOT EXISTS message_status (
			message_id   TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			rank         INTEGER NOT NULL,
			timestamp_ms INTEGER DEFAULT 0,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "v2: legacy top-level credential columns",
		SQL: `
		ALTER TABLE channels ADD COLUMN access_token TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN app_secret TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN page_id TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN phone_number_id TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN business_account_id TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN bot_token TEXT DEFAULT '';
		ALTER TABLE channels ADD COLUMN public_key TEXT DEFAULT '';
		CREATE INDEX IF NOT EXISTS idx_channels_page ON channels(page_id);
		CREATE INDEX IF NOT EXISTS idx_channels_phone ON channels(phone_number_id);
		CREATE INDEX IF NOT EXISTS idx_channels_business ON channels(business_account_id);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			// ADD COLUMN fails on databases that already carry the column.
			logger.Warn("migration SQL partially failed, retrying per statement", "version", m.Version, "err", err)
			if err := applyMigrationStatements(db, m, logger); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
		logger.Info("migration applied", "version", m.Version)
	}
	return nil
}

// applyMigrationStatements runs each statement on its own, skipping the ones
// that were already applied.
func applyMigrationStatements(db *sql.DB, m migration, logger *slog.Logger) error {
	for _, stmt := range splitSQL(m.SQL) {
		if _, err := db.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
				logger.Debug("migration statement skipped", "stmt_prefix", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

// splitSQL splits a multi-statement script on semicolons.
func splitSQL(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetSchemaVersion returns the applied schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
