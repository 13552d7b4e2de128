// Package telegram posts the weekly event digest to a Telegram chat through
// the Bot API and keeps it up to date by editing the posted message.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	appLog "eventcal/internal/log"
)

const defaultAPIURL = "https://api.telegram.org"

// IsMessageNotFound reports whether err says the message to edit is gone.
func IsMessageNotFound(err error) bool {
	return apiErrorContains(err, "message to edit not found")
}

func isNotModified(err error) bool {
	return apiErrorContains(err, "message is not modified")
}

func apiErrorContains(err error, text string) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), text)
}

// Client sends and edits MarkdownV2 messages.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/bot%s/%s",
		token:    token,
		http:     httpClient,
	}
}

// ctxClient binds a request context to the bot's plain Do calls.
type ctxClient struct {
	ctx  context.Context
	http *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(c.ctx))
}

// api builds a bot bound to ctx. It does not call getMe.
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.token,
		Client: ctxClient{ctx: ctx, http: c.http},
	}
	bot.SetAPIEndpoint(c.endpoint)
	return bot
}

// target splits a configured chat into a numeric id or a @channel name.
func target(chatID string) (int64, string) {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return id, ""
	}
	return 0, chatID
}

// SendMessage posts text (MarkdownV2) and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (int64, error) {
	id, channel := target(chatID)
	msg := tgbotapi.MessageConfig{
		BaseChat:              tgbotapi.BaseChat{ChatID: id, ChannelUsername: channel},
		Text:                  text,
		ParseMode:             tgbotapi.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
	sent, err := c.api(ctx).Send(msg)
	if err != nil {
		return 0, c.wrap("sendMessage", err)
	}
	return int64(sent.MessageID), nil
}

// EditMessageText replaces the text of a posted message. An unchanged text
// is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error {
	id, channel := target(chatID)
	edit := tgbotapi.EditMessageTextConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:          id,
			ChannelUsername: channel,
			MessageID:       int(messageID),
		},
		Text:                  text,
		ParseMode:             tgbotapi.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
	_, err := c.api(ctx).Request(edit)
	if isNotModified(err) {
		appLog.Debug("telegram message not modified", "chat", chatID, "message_id", messageID)
		return nil
	}
	if err != nil {
		return c.wrap("editMessageText", err)
	}
	return nil
}

// wrap names the method. Transport errors carry the request URL, which
// contains the token.
func (c *Client) wrap(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) || c.token == "" {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), c.token, "<token>"))
}
