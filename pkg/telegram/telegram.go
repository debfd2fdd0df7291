// Package telegram is a small Bot API client covering the calls the gate
// status message needs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	logger "github.com/d2r2/go-logger"
)

var lg = logger.NewPackageLogger("telegram", logger.InfoLevel)

// APIError is a reply with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsNotModified reports whether err is the reply to an edit that would not
// change the message.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// ChatTarget normalizes a configured chat: "@name" and numeric ids (negative
// for groups and channels) are kept, a bare channel name gets an "@".
func ChatTarget(chat string) string {
	chat = strings.TrimSpace(chat)
	if strings.HasPrefix(chat, "@") || isChatID(chat) {
		return chat
	}
	return "@" + chat
}

func isChatID(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Client posts to one chat.
type Client struct {
	baseURL string
	chat    string
	http    *http.Client
}

// New creates a client for bot token posting to chat. apiURL is normally
// https://api.telegram.org.
func New(apiURL, token, chat string) *Client {
	return &Client{
		baseURL: strings.TrimRight(apiURL, "/") + "/bot" + token,
		chat:    ChatTarget(chat),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Chat returns the normalized chat target.
func (c *Client) Chat() string { return c.chat }

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type editMessageTextRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type pinChatMessageRequest struct {
	ChatID              string `json:"chat_id"`
	MessageID           int64  `json:"message_id"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type deleteMessageRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

// SendMessage posts text and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, text string, silent bool) (int64, error) {
	result, err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:              c.chat,
		Text:                text,
		DisableNotification: silent,
	})
	if err != nil {
		return 0, err
	}
	id, ok := result.Path("message_id").Data().(float64)
	if !ok {
		return 0, errors.New("telegram sendMessage: no message_id in reply")
	}
	return int64(id), nil
}

// EditMessageText replaces the text of message id.
func (c *Client) EditMessageText(ctx context.Context, id int64, text string) error {
	_, err := c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:    c.chat,
		MessageID: id,
		Text:      text,
	})
	return err
}

// PinChatMessage pins message id.
func (c *Client) PinChatMessage(ctx context.Context, id int64, silent bool) error {
	_, err := c.call(ctx, "pinChatMessage", pinChatMessageRequest{
		ChatID:              c.chat,
		MessageID:           id,
		DisableNotification: silent,
	})
	return err
}

// DeleteMessage deletes message id.
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	_, err := c.call(ctx, "deleteMessage", deleteMessageRequest{
		ChatID:    c.chat,
		MessageID: id,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, body interface{}) (*gabs.Container, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// the request URL carries the bot token, keep it out of logs
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	// error replies come with a JSON body and a 4xx status
	parsed, err := gabs.ParseJSONBuffer(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: HTTP %d: %w", method, resp.StatusCode, err)
	}
	if ok, _ := parsed.Path("ok").Data().(bool); !ok {
		code, _ := parsed.Path("error_code").Data().(float64)
		desc, _ := parsed.Path("description").Data().(string)
		return nil, &APIError{Method: method, Code: int(code), Description: desc}
	}
	lg.Debugf("%s ok", method)
	return parsed.Path("result"), nil
}
