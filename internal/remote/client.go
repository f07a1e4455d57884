// Package remote is the typed accessor for the eventually-consistent
// key-value HTTP store holding chat messages.
//
// The store exposes a Firebase-realtime-database-shaped REST surface:
//
//	GET    {base}/messages.json                          -> map[key]Message
//	POST   {base}/messages.json                          -> append
//	PUT    {base}/messages/{key}/readBy/{device}.json    -> mark one read flag
//	PUT    {base}/messages/{key}/pinned.json             -> toggle pin
//	DELETE {base}/messages/{key}.json                    -> delete
//
// Read-flag and pin updates are targeted partial writes: they never rewrite
// the whole message and so never clobber other devices' read flags.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"grafikd/pkg/logx"
)

// MaxFileSize caps base64 file payloads (bytes, pre-encoding).
const MaxFileSize = 5 * 1024 * 1024

type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

// NewClient builds a client for the given store base URL.
// The trailing slash is trimmed; timeout <= 0 defaults to 30s.
func NewClient(baseURL string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
		log:  log.With(logx.String("comp", "remote")),
	}
}

// GetMessages fetches the full message collection, sorted by timestamp.
// Individual entries that fail to decode are skipped and logged; they do
// not fail the whole fetch.
func (c *Client) GetMessages(ctx context.Context) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/messages.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: GET messages: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	// The store returns JSON null for an empty collection.
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("remote: decode collection: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for key, rm := range raw {
		var m Message
		if err := json.Unmarshal(rm, &m); err != nil {
			c.log.Warn("skipping undecodable message", logx.String("key", key), logx.Err(err))
			continue
		}
		m.Key = key
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, nil
}

// GetUnreadMessages returns the messages whose readBy set does not contain
// the given device id, sorted by timestamp.
func (c *Client) GetUnreadMessages(ctx context.Context, deviceID string) ([]Message, error) {
	all, err := c.GetMessages(ctx)
	if err != nil {
		return nil, err
	}
	unread := all[:0:0]
	for _, m := range all {
		if !m.ReadByDevice(deviceID) {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

// MarkMessageRead sets this device's read flag on one message.
// It is a targeted partial update and safe to retry.
func (c *Client) MarkMessageRead(ctx context.Context, key, deviceID string) error {
	if key == "" || deviceID == "" {
		return fmt.Errorf("remote: mark read: empty key or device id")
	}
	path := fmt.Sprintf("%s/messages/%s/readBy/%s.json", c.base, url.PathEscape(key), url.PathEscape(deviceID))
	return c.put(ctx, path, []byte("true"))
}

// SetMessagePinned toggles the pin flag on one message via a partial update.
func (c *Client) SetMessagePinned(ctx context.Context, key string, pinned bool) error {
	if key == "" {
		return fmt.Errorf("remote: set pinned: empty key")
	}
	path := fmt.Sprintf("%s/messages/%s/pinned.json", c.base, url.PathEscape(key))
	return c.put(ctx, path, []byte(strconv.FormatBool(pinned)))
}

// SendMessage appends a text message. The sending device is pre-added to
// readBy so its own poll loop never re-delivers it.
func (c *Client) SendMessage(ctx context.Context, sender, text, deviceID string) error {
	m := Message{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Type:      TypeText,
	}
	if deviceID != "" {
		m.ReadBy = map[string]bool{deviceID: true}
	}
	return c.post(ctx, m)
}

// SendFileMessage appends a file message with the file content inlined as
// base64. Files over MaxFileSize are rejected.
func (c *Client) SendFileMessage(ctx context.Context, sender, path, deviceID string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Size() > MaxFileSize {
		return fmt.Errorf("remote: file too large: %d bytes (max %d)", st.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	m := Message{
		Sender:    sender,
		Text:      "Поделился файлом: " + name,
		Timestamp: time.Now().UTC(),
		Type:      TypeFile,
		FileName:  name,
		FileData:  base64.StdEncoding.EncodeToString(data),
		FileSize:  st.Size(),
	}
	if deviceID != "" {
		m.ReadBy = map[string]bool{deviceID: true}
	}
	return c.post(ctx, m)
}

// ExtractFile decodes a file message's payload into dir and returns the path.
func ExtractFile(m Message, dir string) (string, error) {
	if !m.IsFile() || m.FileData == "" || m.FileName == "" {
		return "", fmt.Errorf("remote: message %q carries no file", m.Key)
	}
	data, err := base64.StdEncoding.DecodeString(m.FileData)
	if err != nil {
		return "", fmt.Errorf("remote: decode file payload: %w", err)
	}
	// Strip any path components a malicious sender may have embedded.
	path := filepath.Join(dir, filepath.Base(m.FileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// DeleteMessage removes one message by key.
func (c *Client) DeleteMessage(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("remote: delete: empty key")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/messages/%s.json", c.base, url.PathEscape(key)), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote: DELETE %s: status %d", key, resp.StatusCode)
	}
	return nil
}

// CleanupOldMessages deletes messages older than the retention window unless
// pinned. Returns the number deleted; per-message delete failures are logged
// and skipped so one bad key doesn't abort the sweep.
func (c *Client) CleanupOldMessages(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	all, err := c.GetMessages(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-retention)

	deleted := 0
	for _, m := range all {
		if m.Pinned || !m.Timestamp.Before(cutoff) {
			continue
		}
		if err := c.DeleteMessage(ctx, m.Key); err != nil {
			c.log.Warn("retention delete failed", logx.String("key", m.Key), logx.Err(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		c.log.Info("retention sweep removed messages", logx.Int("count", deleted))
	}
	return deleted, nil
}

func (c *Client) post(ctx context.Context, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages.json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote: POST message: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) put(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote: PUT: status %d", resp.StatusCode)
	}
	return nil
}
