package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/datetime"
	"eventcal/internal/model"
)

var fixedNow = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func day(t *testing.T, s string) datetime.DateTime {
	t.Helper()
	d, err := datetime.Parse(s)
	require.NoError(t, err)
	return d
}

func TestEventsBetween_QueryAndCategories(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM events WHERE start_date <= \$1 AND COALESCE\(NULLIF\(end_date, ''\), start_date\) >= \$2 AND calendar = \$3 AND public = \$4 ORDER BY start_date, start_time, id`).
		WithArgs("2020-01-12", "2020-01-06", "kultur", true).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(1, "2020-01-03", "", "2020-01-07", "", "Ausstellung", "", "", "", "", true, fixedNow, "kultur", "", "").
			AddRow(2, "2020-01-08", "19:00", "", "", "Konzert", "", "Halle", "", "", true, fixedNow, "kultur", "anna", ""))
	mock.ExpectQuery(`SELECT ec.event_id, ec.category_id, ec.is_primary, c.name, c.text_color, c.background_color FROM event_categories ec JOIN categories c ON c.id = ec.category_id WHERE ec.event_id IN \(\$1,\$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "category_id", "is_primary", "name", "text_color", "background_color"}).
			AddRow(2, 5, true, "Musik", "#fff", "#c00").
			AddRow(2, 6, false, "Abend", "", ""))

	events, err := s.EventsBetween(context.Background(), "kultur", day(t, "2020-01-06"), day(t, "2020-01-12"), true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, events, 2)
	assert.Empty(t, events[0].Categories)
	require.Len(t, events[1].Categories, 2)
	primary, ok := events[1].PrimaryCategory()
	require.True(t, ok)
	assert.Equal(t, "Musik", primary.Name)
	assert.Equal(t, []int64{5, 6}, events[1].CategoryIDs())
}

func TestEventsBetween_AllCalendarsWithHidden(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM events WHERE start_date <= \$1 AND COALESCE\(NULLIF\(end_date, ''\), start_date\) >= \$2 ORDER BY`).
		WithArgs("2020-01-31", "2020-01-01").
		WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := s.EventsBetween(context.Background(), "", day(t, "2020-01-01"), day(t, "2020-01-31"), false)
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEvent_LinksCategoriesInTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	e := &model.Event{
		StartDate: "2020-01-02", Title: "Lesung", Public: true,
		Categories: []model.EventCategory{{CategoryID: 1}, {CategoryID: 3, Primary: true}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO events \(start_date,start_time,end_date,end_time,title,organizer,location,description,url,public,created_at,calendar,created_by,external_id\) VALUES \(.+\) RETURNING id`).
		WithArgs("2020-01-02", "", "", "", "Lesung", "", "", "", "", true, fixedNow, "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM categories WHERE id IN \(\$1,\$2\)`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`DELETE FROM event_categories WHERE event_id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO event_categories \(event_id,category_id,is_primary\) VALUES \(\$1,\$2,\$3\),\(\$4,\$5,\$6\)`).
		WithArgs(int64(7), int64(3), true, int64(7), int64(1), false).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, s.CreateEvent(context.Background(), e))
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, fixedNow, e.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEvent_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.UpdateEvent(context.Background(), &model.Event{ID: 99, StartDate: "2020-01-01", Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM events WHERE id = \$1 LIMIT 1`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	_, err := s.GetEvent(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountEventsCreatedSince(t *testing.T) {
	s, mock := newMockStore(t)
	since := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountEventsCreatedSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDigestMessage_ReplacesRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM digest_messages WHERE chat_id = \$1`).
		WithArgs("-100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO digest_messages \(chat_id,message_id,week_start,text_hash,sent_at\) VALUES \(\$1,\$2,\$3,\$4,\$5\)`).
		WithArgs("-100", int64(42), "2020-01-06", "abc", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.SaveDigestMessage(context.Background(), &DigestMessage{ChatID: "-100", MessageID: 42, WeekStart: "2020-01-06", TextHash: "abc"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastDigestMessage_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM digest_messages WHERE chat_id = \$1`).
		WithArgs("-100").
		WillReturnRows(sqlmock.NewRows([]string{"chat_id", "message_id", "week_start", "text_hash", "sent_at"}))

	_, err := s.LastDigestMessage(context.Background(), "-100")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_PlaceholderFollowsDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query, _, err := New(sqlx.NewDb(db, DriverSQLite)).sb.Select("id").From("events").Where("id = ?", 1).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM events WHERE id = ?", query)

	query, _, err = New(sqlx.NewDb(db, DriverPostgres)).sb.Select("id").From("events").Where("id = ?", 1).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM events WHERE id = $1", query)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.ErrorContains(t, err, "unsupported database driver")
}
