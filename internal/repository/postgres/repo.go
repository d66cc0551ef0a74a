package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/thaddeuskkr/whatsapp/internal/domain"
)

const uniqueViolation = "23505"

type Repository struct {
	DB *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id                           UUID PRIMARY KEY,
	w_id                         TEXT NOT NULL UNIQUE,
	ack                          INT NOT NULL DEFAULT 0,
	author                       TEXT,
	body                         TEXT NOT NULL DEFAULT '',
	broadcast                    BOOLEAN NOT NULL DEFAULT FALSE,
	device_type                  TEXT,
	duration                     TEXT,
	forwarding_score             INT NOT NULL DEFAULT 0,
	from_id                      TEXT NOT NULL,
	from_me                      BOOLEAN NOT NULL DEFAULT FALSE,
	group_mentions               JSONB NOT NULL DEFAULT '[]',
	has_media                    BOOLEAN NOT NULL DEFAULT FALSE,
	has_quoted_msg               BOOLEAN NOT NULL DEFAULT FALSE,
	has_reaction                 BOOLEAN NOT NULL DEFAULT FALSE,
	is_ephemeral                 BOOLEAN NOT NULL DEFAULT FALSE,
	is_forwarded                 BOOLEAN NOT NULL DEFAULT FALSE,
	is_gif                       BOOLEAN NOT NULL DEFAULT FALSE,
	is_starred                   BOOLEAN NOT NULL DEFAULT FALSE,
	is_status                    BOOLEAN NOT NULL DEFAULT FALSE,
	links                        JSONB NOT NULL DEFAULT '[]',
	location                     JSONB,
	media_key                    TEXT,
	mentioned_ids                JSONB NOT NULL DEFAULT '[]',
	ts                           TIMESTAMPTZ NOT NULL,
	to_id                        TEXT NOT NULL,
	type                         TEXT NOT NULL,
	v_cards                      JSONB NOT NULL DEFAULT '[]',
	latest_edit_sender_timestamp TIMESTAMPTZ,
	latest_edit_msg_key          TEXT,
	created_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_ts_idx ON messages (ts DESC);
CREATE INDEX IF NOT EXISTS messages_edit_ts_idx ON messages (latest_edit_sender_timestamp DESC)
	WHERE latest_edit_sender_timestamp IS NOT NULL;
CREATE INDEX IF NOT EXISTS messages_revoked_idx ON messages (updated_at DESC)
	WHERE type = 'revoked';
`

// Migrate creates the messages table and its indexes if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const messageColumns = `
	id, w_id, ack, author, body, broadcast, device_type, duration,
	forwarding_score, from_id, from_me, group_mentions, has_media,
	has_quoted_msg, has_reaction, is_ephemeral, is_forwarded, is_gif,
	is_starred, is_status, links, location, media_key, mentioned_ids,
	ts, to_id, type, v_cards, latest_edit_sender_timestamp,
	latest_edit_msg_key, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	groupMentions, err := json.Marshal(orEmpty(msg.GroupMentions))
	if err != nil {
		return nil, err
	}
	links, err := json.Marshal(orEmpty(msg.Links))
	if err != nil {
		return nil, err
	}
	mentionedIDs, err := json.Marshal(orEmpty(msg.MentionedIDs))
	if err != nil {
		return nil, err
	}
	vCards, err := json.Marshal(orEmpty(msg.VCards))
	if err != nil {
		return nil, err
	}
	var location []byte
	if msg.Location != nil {
		if location, err = json.Marshal(msg.Location); err != nil {
			return nil, err
		}
	}

	err = r.DB.QueryRowContext(ctx, `
		INSERT INTO messages (
			id, w_id, ack, author, body, broadcast, device_type, duration,
			forwarding_score, from_id, from_me, group_mentions, has_media,
			has_quoted_msg, has_reaction, is_ephemeral, is_forwarded, is_gif,
			is_starred, is_status, links, location, media_key, mentioned_ids,
			ts, to_id, type, v_cards
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''),
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, NULLIF($23, ''), $24,
			$25, $26, $27, $28
		)
		RETURNING created_at, updated_at
	`,
		msg.ID, msg.WID, msg.Ack, msg.Author, msg.Body, msg.Broadcast,
		msg.DeviceType, msg.Duration, msg.ForwardingScore, msg.From,
		msg.FromMe, groupMentions, msg.HasMedia, msg.HasQuotedMsg,
		msg.HasReaction, msg.IsEphemeral, msg.IsForwarded, msg.IsGif,
		msg.IsStarred, msg.IsStatus, links, nullBytes(location), msg.MediaKey,
		mentionedIDs, msg.Timestamp, msg.To, msg.Type, vCards,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil, domain.ErrDuplicateMessage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (r *Repository) FindByWID(ctx context.Context, wid string) (*domain.Message, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE w_id = $1`, wid)
	return scanMessage(row)
}

func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

func (r *Repository) Update(ctx context.Context, msg *domain.Message) error {
	err := r.DB.QueryRowContext(ctx, `
		UPDATE messages
		SET body = $2,
			type = $3,
			latest_edit_sender_timestamp = $4,
			latest_edit_msg_key = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, msg.ID, msg.Body, msg.Type, msg.LatestEditSenderTimestamp, msg.LatestEditMsgKey).
		Scan(&msg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (r *Repository) ListCreated(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error) {
	if after != nil {
		return r.list(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE ts > $1 ORDER BY ts ASC`, *after)
	}
	return r.list(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY ts DESC LIMIT $1`, limit)
}

func (r *Repository) ListEdited(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error) {
	if after != nil {
		return r.list(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE latest_edit_sender_timestamp > $1
			ORDER BY latest_edit_sender_timestamp ASC`, *after)
	}
	return r.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE latest_edit_sender_timestamp IS NOT NULL
		ORDER BY latest_edit_sender_timestamp DESC LIMIT $1`, limit)
}

func (r *Repository) ListRevoked(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error) {
	if after != nil {
		return r.list(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE type = 'revoked' AND updated_at > $1
			ORDER BY updated_at ASC`, *after)
	}
	return r.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE type = 'revoked'
		ORDER BY updated_at DESC LIMIT $1`, limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scannable) (*domain.Message, error) {
	var (
		msg          domain.Message
		author       sql.NullString
		deviceType   sql.NullString
		duration     sql.NullString
		mediaKey     sql.NullString
		editTS       sql.NullTime
		editKey      sql.NullString
		groupRaw     []byte
		linksRaw     []byte
		locationRaw  []byte
		mentionedRaw []byte
		vCardsRaw    []byte
	)

	err := row.Scan(
		&msg.ID, &msg.WID, &msg.Ack, &author, &msg.Body, &msg.Broadcast,
		&deviceType, &duration, &msg.ForwardingScore, &msg.From, &msg.FromMe,
		&groupRaw, &msg.HasMedia, &msg.HasQuotedMsg, &msg.HasReaction,
		&msg.IsEphemeral, &msg.IsForwarded, &msg.IsGif, &msg.IsStarred,
		&msg.IsStatus, &linksRaw, &locationRaw, &mediaKey, &mentionedRaw,
		&msg.Timestamp, &msg.To, &msg.Type, &vCardsRaw, &editTS, &editKey,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Author = author.String
	msg.DeviceType = deviceType.String
	msg.Duration = duration.String
	msg.MediaKey = mediaKey.String
	if editTS.Valid {
		t := editTS.Time
		msg.LatestEditSenderTimestamp = &t
	}
	if editKey.Valid {
		k := editKey.String
		msg.LatestEditMsgKey = &k
	}

	if err := json.Unmarshal(groupRaw, &msg.GroupMentions); err != nil {
		return nil, fmt.Errorf("failed to decode group mentions: %w", err)
	}
	if err := json.Unmarshal(linksRaw, &msg.Links); err != nil {
		return nil, fmt.Errorf("failed to decode links: %w", err)
	}
	if err := json.Unmarshal(mentionedRaw, &msg.MentionedIDs); err != nil {
		return nil, fmt.Errorf("failed to decode mentioned ids: %w", err)
	}
	if err := json.Unmarshal(vCardsRaw, &msg.VCards); err != nil {
		return nil, fmt.Errorf("failed to decode vcards: %w", err)
	}
	if len(locationRaw) > 0 {
		msg.Location = &domain.Location{}
		if err := json.Unmarshal(locationRaw, msg.Location); err != nil {
			return nil, fmt.Errorf("failed to decode location: %w", err)
		}
	}
	return &msg, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
