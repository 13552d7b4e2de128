package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

var eventColumns = []string{
	"id", "start_date", "start_time", "end_date", "end_time", "title",
	"organizer", "location", "description", "url", "public", "created_at",
	"calendar", "created_by", "external_id",
}

// CreateEvent inserts e with its category links and sets ID and CreatedAt.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	e.CreatedAt = s.now()

	query, args, err := s.sb.Insert("events").
		Columns(eventColumns[1:]...).
		Values(e.StartDate, e.StartTime, e.EndDate, e.EndTime, e.Title,
			e.Organizer, e.Location, e.Description, e.URL, e.Public, e.CreatedAt,
			e.Calendar, e.CreatedBy, e.ExternalID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&e.ID); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return s.linkCategories(ctx, tx, e.ID, e.CategoryIDs())
	})
	if err != nil {
		appLog.Error("failed to create event", err, "title", e.Title)
		return err
	}
	return nil
}

// UpdateEvent rewrites the editable fields of e and replaces its category
// links. CreatedAt, CreatedBy and ExternalID are kept.
func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	query, args, err := s.sb.Update("events").
		SetMap(map[string]any{
			"start_date":  e.StartDate,
			"start_time":  e.StartTime,
			"end_date":    e.EndDate,
			"end_time":    e.EndTime,
			"title":       e.Title,
			"organizer":   e.Organizer,
			"location":    e.Location,
			"description": e.Description,
			"url":         e.URL,
			"public":      e.Public,
			"calendar":    e.Calendar,
		}).
		Where(sq.Eq{"id": e.ID}).
		ToSql()
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			appLog.Error("failed to update event", err, "id", e.ID)
			return fmt.Errorf("update event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return s.linkCategories(ctx, tx, e.ID, e.CategoryIDs())
	})
}

// DeleteEvent removes an event and its category links.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Delete("event_categories").Where(sq.Eq{"event_id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete event categories: %w", err)
		}

		query, args, err = s.sb.Delete("events").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			appLog.Error("failed to delete event", err, "id", id)
			return fmt.Errorf("delete event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetEvent loads one event with its categories.
func (s *Store) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return s.getEventWhere(ctx, sq.Eq{"id": id})
}

// EventByExternalID finds an imported event by its source identifier.
func (s *Store) EventByExternalID(ctx context.Context, externalID string) (*model.Event, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return s.getEventWhere(ctx, sq.Eq{"external_id": externalID})
}

func (s *Store) getEventWhere(ctx context.Context, where sq.Sqlizer) (*model.Event, error) {
	query, args, err := s.sb.Select(eventColumns...).From("events").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var e model.Event
	if err := s.db.GetContext(ctx, &e, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := s.attachCategories(ctx, []*model.Event{&e}); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventsBetween returns the events whose span intersects [from, to], ordered
// by start date and time. An empty calendar matches every calendar.
func (s *Store) EventsBetween(ctx context.Context, calendar string, from, to datetime.DateTime, publicOnly bool) ([]*model.Event, error) {
	q := s.sb.Select(eventColumns...).From("events").
		Where(sq.LtOrEq{"start_date": to.ISODate()}).
		Where(sq.Expr("COALESCE(NULLIF(end_date, ''), start_date) >= ?", from.ISODate())).
		OrderBy("start_date", "start_time", "id")
	if calendar != "" {
		q = q.Where(sq.Eq{"calendar": calendar})
	}
	if publicOnly {
		q = q.Where(sq.Eq{"public": true})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var events []*model.Event
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		appLog.Error("failed to load events", err, "from", from.ISODate(), "to", to.ISODate())
		return nil, fmt.Errorf("select events: %w", err)
	}
	if err := s.attachCategories(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountEventsCreatedSince counts events created at or after since.
func (s *Store) CountEventsCreatedSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("events").
		Where(sq.GtOrEq{"created_at": since.UTC()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// UpsertImported stores an imported event: a new row when its external id is
// unknown, otherwise an update of the existing one. It reports whether a row
// was created.
func (s *Store) UpsertImported(ctx context.Context, e *model.Event) (bool, error) {
	existing, err := s.EventByExternalID(ctx, e.ExternalID)
	switch {
	case errors.Is(err, ErrNotFound):
		return true, s.CreateEvent(ctx, e)
	case err != nil:
		return false, err
	}

	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	e.CreatedBy = existing.CreatedBy
	if len(e.Categories) == 0 {
		e.Categories = existing.Categories
	}
	return false, s.UpdateEvent(ctx, e)
}
