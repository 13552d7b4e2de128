package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// DigestMessage records the last weekly digest posted to a chat, so the next
// run can edit it in place instead of posting again.
type DigestMessage struct {
	ChatID    string    `db:"chat_id"`
	MessageID int64     `db:"message_id"`
	WeekStart string    `db:"week_start"`
	TextHash  string    `db:"text_hash"`
	SentAt    time.Time `db:"sent_at"`
}

func (s *Store) LastDigestMessage(ctx context.Context, chatID string) (*DigestMessage, error) {
	query, args, err := s.sb.Select("chat_id", "message_id", "week_start", "text_hash", "sent_at").
		From("digest_messages").
		Where(sq.Eq{"chat_id": chatID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var m DigestMessage
	if err := s.db.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get digest message: %w", err)
	}
	return &m, nil
}

// SaveDigestMessage replaces the record for m.ChatID.
func (s *Store) SaveDigestMessage(ctx context.Context, m *DigestMessage) error {
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Delete("digest_messages").Where(sq.Eq{"chat_id": m.ChatID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear digest message: %w", err)
		}

		query, args, err = s.sb.Insert("digest_messages").
			Columns("chat_id", "message_id", "week_start", "text_hash", "sent_at").
			Values(m.ChatID, m.MessageID, m.WeekStart, m.TextHash, m.SentAt).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save digest message: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteDigestMessage(ctx context.Context, chatID string) error {
	query, args, err := s.sb.Delete("digest_messages").Where(sq.Eq{"chat_id": chatID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete digest message: %w", err)
	}
	return nil
}
