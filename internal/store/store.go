// Package store is a SQLite-backed channel store and message manager. It
// backs the CLI and the HTTP server; deployments with their own persistence
// implement the domain interfaces directly.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"botgateway/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	_ domain.ChannelStore   = (*SQLiteStore)(nil)
	_ domain.MessageManager = (*SQLiteStore)(nil)
)

// statusRank orders delivery states; a status never moves backwards.
var statusRank = map[domain.MessageStatus]int{
	domain.MessageSent:      1,
	domain.MessageDelivered: 2,
	domain.MessageRead:      3,
	domain.MessageFailed:    4,
}

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- channels ---

const channelColumns = `id, type, name, credentials, webhook_secret, status,
	access_token, app_secret, page_id, phone_number_id, business_account_id, bot_token, public_key,
	created_at, updated_at`

// SaveChannel inserts or replaces ch. An empty ID is assigned a new one.
func (s *SQLiteStore) SaveChannel(ctx context.Context, ch *domain.Channel) error {
	if ch == nil {
		return errors.New("save channel: nil channel")
	}
	if !ch.Type.Valid() {
		return fmt.Errorf("save channel: unknown type %q", ch.Type)
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.Status == "" {
		ch.Status = domain.StatusActive
	}
	now := time.Now().UTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	creds, err := json.Marshal(ch.Credentials)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", ch.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, name=excluded.name, credentials=excluded.credentials,
			webhook_secret=excluded.webhook_secret, status=excluded.status,
			access_token=excluded.access_token, app_secret=excluded.app_secret,
			page_id=excluded.page_id, phone_number_id=excluded.phone_number_id,
			business_account_id=excluded.business_account_id, bot_token=excluded.bot_token,
			public_key=excluded.public_key, updated_at=excluded.updated_at`,
		ch.ID, string(ch.Type), ch.Name, string(creds), ch.WebhookSecret, string(ch.Status),
		ch.AccessToken, ch.AppSecret, ch.PageID, ch.PhoneNumberID, ch.BusinessAccountID, ch.BotToken, ch.PublicKey,
		ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", ch.ID, err)
	}
	return nil
}

// GetChannel loads a channel by id. A missing row is ErrChannelNotFound.
func (s *SQLiteStore) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// ListChannels returns all channels, optionally restricted to one type.
func (s *SQLiteStore) ListChannels(ctx context.Context, t domain.ChannelType) ([]domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels`
	var args []any
	if t != "" {
		query += ` WHERE type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

// FindByBusinessAccountID matches accountID against the platform account
// columns and the equivalent nested credential keys.
func (s *SQLiteStore) FindByBusinessAccountID(ctx context.Context, accountID string) (*domain.Channel, error) {
	if accountID == "" {
		return nil, domain.ErrChannelNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM channels
		WHERE status != 'inactive' AND (
			page_id = ?1 OR business_account_id = ?1 OR phone_number_id = ?1
			OR json_extract(credentials, '$.page_id') = ?1
			OR json_extract(credentials, '$.business_account_id') = ?1
			OR json_extract(credentials, '$.instagram_account_id') = ?1
			OR json_extract(credentials, '$.phone_number_id') = ?1
			OR json_extract(credentials, '$.waba_id') = ?1
			OR json_extract(credentials, '$.guild_id') = ?1
		)
		ORDER BY created_at LIMIT 1`, accountID)
	return scanChannel(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(sc scanner) (*domain.Channel, error) {
	var (
		ch     domain.Channel
		typ    string
		status string
		creds  sql.NullString
	)
	err := sc.Scan(&ch.ID, &typ, &ch.Name, &creds, &ch.WebhookSecret, &status,
		&ch.AccessToken, &ch.AppSecret, &ch.PageID, &ch.PhoneNumberID, &ch.BusinessAccountID, &ch.BotToken, &ch.PublicKey,
		&ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	ch.Type = domain.ChannelType(typ)
	ch.Status = domain.ChannelStatus(status)
	if creds.Valid && creds.String != "" && creds.String != "null" {
		if err := json.Unmarshal([]byte(creds.String), &ch.Credentials); err != nil {
			return nil, fmt.Errorf("channel %s credentials: %w", ch.ID, err)
		}
	}
	return &ch, nil
}

// --- message manager ---

// ReceiveMessage records ev. A redelivered platform message id is ignored.
func (s *SQLiteStore) ReceiveMessage(ctx context.Context, channelID string, ev domain.InboundEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	var messageID sql.NullString
	if ev.MessageID != "" {
		messageID = sql.NullString{String: ev.MessageID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO inbound_events (id, channel_id, channel_type, event_type, message_id, sender_id, data, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, channelID, string(ev.Channel), string(ev.Type), messageID, ev.From.ID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store event %s: %w", ev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("duplicate event ignored", "channel_id", channelID, "message_id", ev.MessageID)
	}
	return nil
}

// UpdateMessageStatus records status for a platform message id unless a
// later status is already stored.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, platformMessageID string, status domain.MessageStatus, timestampMillis int64) error {
	rank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("unknown message status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_status (message_id, status, rank, timestamp_ms, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			status=excluded.status, rank=excluded.rank,
			timestamp_ms=excluded.timestamp_ms, updated_at=excluded.updated_at
		WHERE excluded.rank > message_status.rank`,
		platformMessageID, string(status), rank, timestampMillis, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", platformMessageID, err)
	}
	return nil
}

// MessageStatus returns the stored status of a platform message id.
func (s *SQLiteStore) MessageStatus(ctx context.Context, platformMessageID string) (domain.MessageStatus, int64, error) {
	var (
		status string
		ts     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, timestamp_ms FROM message_status WHERE message_id = ?`, platformMessageID,
	).Scan(&status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("message %s: no status recorded", platformMessageID)
	}
	if err != nil {
		return "", 0, err
	}
	return domain.MessageStatus(status), ts, nil
}

// ListEvents returns the most recent events of a channel, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, channelID string, limit int) ([]domain.InboundEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM inbound_events WHERE channel_id = ?
		ORDER BY received_at DESC, rowid DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InboundEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev domain.InboundEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.logger.Warn("skipping undecodable event", "channel_id", channelID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
