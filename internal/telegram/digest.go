package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/store"
)

// RangePlaceholder in a configured header is replaced with the week range.
const RangePlaceholder = "{range}"

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) (int64, error)
	EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error
}

// Records persists the last digest posted per chat.
type Records interface {
	LastDigestMessage(ctx context.Context, chatID string) (*store.DigestMessage, error)
	SaveDigestMessage(ctx context.Context, m *store.DigestMessage) error
	DeleteDigestMessage(ctx context.Context, chatID string) error
}

type WeekRenderer interface {
	Week(ctx context.Context, weekStart datetime.DateTime, calendar, header, footer string) (string, error)
}

type DigestConfig struct {
	ChatID   string
	Calendar string
	Header   string
	Footer   string
}

// Action is what a digest run did.
type Action string

const (
	ActionSent      Action = "sent"
	ActionEdited    Action = "edited"
	ActionUnchanged Action = "unchanged"
	ActionDropped   Action = "dropped"
)

type Digest struct {
	bot     Messenger
	records Records
	weeks   WeekRenderer
	clock   datetime.Clock
	cfg     DigestConfig
}

func NewDigest(bot Messenger, records Records, weeks WeekRenderer, clock datetime.Clock, cfg DigestConfig) *Digest {
	if clock == nil {
		clock = datetime.SystemClock{}
	}
	return &Digest{bot: bot, records: records, weeks: weeks, clock: clock, cfg: cfg}
}

// DigestWeek is the Monday of the week the digest covers: on Sundays the
// coming week, otherwise the current one.
func DigestWeek(today datetime.DateTime) datetime.DateTime {
	if today.IsSunday() {
		return datetime.NextMonday(today)
	}
	return datetime.LastMonday(today)
}

// Text renders the digest for the week starting at weekStart.
func (d *Digest) Text(ctx context.Context, weekStart datetime.DateTime) (string, error) {
	header := d.cfg.Header
	if strings.Contains(header, RangePlaceholder) {
		end := weekStart.AddDays(6)
		header = strings.ReplaceAll(header, RangePlaceholder,
			fmt.Sprintf("%s bis %s", weekStart.GermanShortDate(), end.GermanDate()))
	}
	return d.weeks.Week(ctx, weekStart, d.cfg.Calendar, header, d.cfg.Footer)
}

// Run posts or updates the digest of the current week. It sends a new
// message when there is no record for this week, edits the recorded message
// when the text changed, and drops the record when Telegram no longer knows
// the message so the next run posts a fresh one.
func (d *Digest) Run(ctx context.Context) (Action, error) {
	week := DigestWeek(datetime.Today(d.clock))
	text, err := d.Text(ctx, week)
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	hash := textHash(text)

	rec, err := d.records.LastDigestMessage(ctx, d.cfg.ChatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load digest record: %w", err)
	}

	if rec == nil || rec.WeekStart != week.ISODate() {
		return d.send(ctx, week, text, hash)
	}
	if rec.TextHash == hash {
		appLog.Debug("digest unchanged", "chat", d.cfg.ChatID, "week", rec.WeekStart)
		return ActionUnchanged, nil
	}

	if err := d.bot.EditMessageText(ctx, d.cfg.ChatID, rec.MessageID, text); err != nil {
		if IsMessageNotFound(err) {
			appLog.Warn("digest message vanished, dropping record", "chat", d.cfg.ChatID, "message_id", rec.MessageID)
			if err := d.records.DeleteDigestMessage(ctx, d.cfg.ChatID); err != nil {
				return "", fmt.Errorf("delete digest record: %w", err)
			}
			return ActionDropped, nil
		}
		appLog.Error("failed to edit digest", err, "chat", d.cfg.ChatID, "message_id", rec.MessageID)
		return "", err
	}

	rec.TextHash = hash
	rec.SentAt = d.clock.Now()
	if err := d.records.SaveDigestMessage(ctx, rec); err != nil {
		return "", fmt.Errorf("save digest record: %w", err)
	}
	appLog.Info("digest edited", "chat", d.cfg.ChatID, "week", rec.WeekStart, "message_id", rec.MessageID)
	return ActionEdited, nil
}

func (d *Digest) send(ctx context.Context, week datetime.DateTime, text, hash string) (Action, error) {
	id, err := d.bot.SendMessage(ctx, d.cfg.ChatID, text)
	if err != nil {
		appLog.Error("failed to send digest", err, "chat", d.cfg.ChatID, "week", week.ISODate())
		return "", err
	}
	rec := &store.DigestMessage{
		ChatID:    d.cfg.ChatID,
		MessageID: id,
		WeekStart: week.ISODate(),
		TextHash:  hash,
		SentAt:    d.clock.Now(),
	}
	if err := d.records.SaveDigestMessage(ctx, rec); err != nil {
		return "", fmt.Errorf("save digest record: %w", err)
	}
	appLog.Info("digest sent", "chat", d.cfg.ChatID, "week", rec.WeekStart, "message_id", id)
	return ActionSent, nil
}

func textHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
