package remote

import (
	"strings"
	"time"
)

// Message type values stored in the remote document.
const (
	TypeText  = "text"
	TypeFile  = "file"
	TypeImage = "image"
)

// Message is one chat message as stored in the remote key-value store.
//
// Key is the opaque remote store key and is the message's identity; the
// embedded ID is kept for compatibility with documents written by older
// clients. ReadBy maps device id -> true and grows monotonically: devices
// only ever add themselves.
type Message struct {
	Key string `json:"-"`

	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	FileData string `json:"fileData,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`

	Pinned bool            `json:"pinned"`
	ReadBy map[string]bool `json:"readBy,omitempty"`
}

// ReadByDevice reports whether the given device has marked this message read.
func (m Message) ReadByDevice(deviceID string) bool {
	if deviceID == "" {
		return false
	}
	return m.ReadBy[deviceID]
}

// IsFile reports whether the message carries a file payload.
func (m Message) IsFile() bool {
	t := strings.ToLower(strings.TrimSpace(m.Type))
	return t == TypeFile || t == TypeImage
}
