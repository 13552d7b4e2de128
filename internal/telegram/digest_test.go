package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventcal/internal/datetime"
	"eventcal/internal/store"
)

type mockBot struct{ mock.Mock }

func (m *mockBot) SendMessage(ctx context.Context, chatID, text string) (int64, error) {
	args := m.Called(chatID, text)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBot) EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error {
	return m.Called(chatID, messageID, text).Error(0)
}

type memRecords struct {
	recs    map[string]*store.DigestMessage
	deleted int
}

func (m *memRecords) LastDigestMessage(_ context.Context, chatID string) (*store.DigestMessage, error) {
	r, ok := m.recs[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRecords) SaveDigestMessage(_ context.Context, r *store.DigestMessage) error {
	cp := *r
	m.recs[r.ChatID] = &cp
	return nil
}

func (m *memRecords) DeleteDigestMessage(_ context.Context, chatID string) error {
	delete(m.recs, chatID)
	m.deleted++
	return nil
}

type stubWeeks struct {
	text   string
	start  string
	header string
}

func (s *stubWeeks) Week(_ context.Context, weekStart datetime.DateTime, _, header, _ string) (string, error) {
	s.start = weekStart.ISODate()
	s.header = header
	return s.text, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func at(y int, m time.Month, d int) fixedClock {
	return fixedClock{now: time.Date(y, m, d, 8, 0, 0, 0, datetime.Location)}
}

func TestDigestWeek(t *testing.T) {
	for day, want := range map[string]string{
		"2020-01-06": "2020-01-06", // Monday
		"2020-01-09": "2020-01-06",
		"2020-01-11": "2020-01-06", // Saturday
		"2020-01-12": "2020-01-13", // Sunday looks ahead
	} {
		d, err := datetime.Parse(day)
		require.NoError(t, err)
		assert.Equal(t, want, DigestWeek(d).ISODate(), day)
	}
}

func TestDigest_Lifecycle(t *testing.T) {
	ctx := context.Background()
	bot := new(mockBot)
	recs := &memRecords{recs: map[string]*store.DigestMessage{}}
	weeks := &stubWeeks{text: "v1"}
	cfg := DigestConfig{ChatID: "-100", Calendar: "main", Header: "Diese Woche: {range}"}

	d := NewDigest(bot, recs, weeks, at(2020, 1, 8), cfg)

	// first run sends
	bot.On("SendMessage", "-100", "v1").Return(int64(10), nil).Once()
	action, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionSent, action)
	assert.Equal(t, "2020-01-06", weeks.start)
	assert.Equal(t, "Diese Woche: 06.01. bis 12.01.2020", weeks.header)
	assert.Equal(t, "2020-01-06", recs.recs["-100"].WeekStart)

	// same text: nothing
	action, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, action)

	// changed text: edit in place
	weeks.text = "v2"
	bot.On("EditMessageText", "-100", int64(10), "v2").Return(nil).Once()
	action, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionEdited, action)
	assert.Equal(t, textHash("v2"), recs.recs["-100"].TextHash)

	// message deleted in the chat: record dropped
	weeks.text = "v3"
	bot.On("EditMessageText", "-100", int64(10), "v3").
		Return(fmt.Errorf("telegram editMessageText: %w", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"})).Once()
	action, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, action)
	assert.Equal(t, 1, recs.deleted)

	// next run posts again
	bot.On("SendMessage", "-100", "v3").Return(int64(11), nil).Once()
	action, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionSent, action)
	assert.Equal(t, int64(11), recs.recs["-100"].MessageID)

	bot.AssertExpectations(t)
}

func TestDigest_NewWeekSendsFresh(t *testing.T) {
	bot := new(mockBot)
	recs := &memRecords{recs: map[string]*store.DigestMessage{
		"-1": {ChatID: "-1", MessageID: 3, WeekStart: "2020-01-06", TextHash: textHash("same")},
	}}
	d := NewDigest(bot, recs, &stubWeeks{text: "same"}, at(2020, 1, 12), DigestConfig{ChatID: "-1"})

	bot.On("SendMessage", "-1", "same").Return(int64(4), nil).Once()
	action, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionSent, action)
	assert.Equal(t, "2020-01-13", recs.recs["-1"].WeekStart)
	bot.AssertExpectations(t)
}

func TestDigest_EditFailureIsReturned(t *testing.T) {
	bot := new(mockBot)
	recs := &memRecords{recs: map[string]*store.DigestMessage{
		"-1": {ChatID: "-1", MessageID: 3, WeekStart: "2020-01-06", TextHash: "old"},
	}}
	d := NewDigest(bot, recs, &stubWeeks{text: "neu"}, at(2020, 1, 7), DigestConfig{ChatID: "-1"})

	bot.On("EditMessageText", "-1", int64(3), "neu").Return(errors.New("timeout"))
	_, err := d.Run(context.Background())
	assert.ErrorContains(t, err, "timeout")
	assert.Equal(t, "old", recs.recs["-1"].TextHash)
	assert.Zero(t, recs.deleted)
}
