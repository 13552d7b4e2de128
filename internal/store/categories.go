package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"eventcal/internal/model"
)

var categoryColumns = []string{"id", "name", "text_color", "background_color"}

func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	query, args, err := s.sb.Insert("categories").
		Columns(categoryColumns[1:]...).
		Values(c.Name, c.TextColor, c.BackgroundColor).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&c.ID); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *model.Category) error {
	query, args, err := s.sb.Update("categories").
		Set("name", c.Name).
		Set("text_color", c.TextColor).
		Set("background_color", c.BackgroundColor).
		Where(sq.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category and unlinks it from all events.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Delete("event_categories").Where(sq.Eq{"category_id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("unlink category: %w", err)
		}

		query, args, err = s.sb.Delete("categories").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	query, args, err := s.sb.Select(categoryColumns...).From("categories").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var c model.Category
	if err := s.db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	query, args, err := s.sb.Select(categoryColumns...).From("categories").OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var out []model.Category
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// linkCategories replaces the links of an event. The first id becomes the
// primary category. Unknown ids are a FieldError.
func (s *Store) linkCategories(ctx context.Context, tx *sqlx.Tx, eventID int64, ids []int64) error {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}

	if len(uniq) > 0 {
		query, args, err := s.sb.Select("COUNT(*)").From("categories").Where(sq.Eq{"id": uniq}).ToSql()
		if err != nil {
			return err
		}
		var n int
		if err := tx.GetContext(ctx, &n, query, args...); err != nil {
			return fmt.Errorf("check categories: %w", err)
		}
		if n != len(uniq) {
			return &model.FieldError{Field: model.FieldCategories, Message: "Ungültige Kategorie."}
		}
	}

	query, args, err := s.sb.Delete("event_categories").Where(sq.Eq{"event_id": eventID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear event categories: %w", err)
	}
	if len(uniq) == 0 {
		return nil
	}

	ins := s.sb.Insert("event_categories").Columns("event_id", "category_id", "is_primary")
	for i, id := range uniq {
		ins = ins.Values(eventID, id, i == 0)
	}
	query, args, err = ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("link event categories: %w", err)
	}
	return nil
}

type categoryLink struct {
	model.EventCategory
	Name            string `db:"name"`
	TextColor       string `db:"text_color"`
	BackgroundColor string `db:"background_color"`
}

// attachCategories fills Categories for each event, primary first.
func (s *Store) attachCategories(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Event, len(events))
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args, err := s.sb.
		Select("ec.event_id", "ec.category_id", "ec.is_primary", "c.name", "c.text_color", "c.background_color").
		From("event_categories ec").
		Join("categories c ON c.id = ec.category_id").
		Where(sq.Eq{"ec.event_id": ids}).
		OrderBy("ec.event_id", "ec.is_primary DESC", "c.name").
		ToSql()
	if err != nil {
		return err
	}

	var links []categoryLink
	if err := s.db.SelectContext(ctx, &links, query, args...); err != nil {
		return fmt.Errorf("load event categories: %w", err)
	}
	for _, l := range links {
		e, ok := byID[l.EventID]
		if !ok {
			continue
		}
		ec := l.EventCategory
		ec.Category = model.Category{
			ID:              l.CategoryID,
			Name:            l.Name,
			TextColor:       l.TextColor,
			BackgroundColor: l.BackgroundColor,
		}
		e.Categories = append(e.Categories, ec)
	}
	return nil
}
