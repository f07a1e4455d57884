package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"grafikd/pkg/logx"
)

// fakeStore mimics the key-value store's REST surface closely enough to
// exercise the client: a flat JSON document per message key.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	puts     []string // recorded PUT path + body
	nullBody bool
	nextKey  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]map[string]any{}}
}

func (f *fakeStore) add(key string, doc map[string]any) {
	f.mu.Lock()
	f.docs[key] = doc
	f.mu.Unlock()
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/messages.json":
		if f.nullBody {
			io.WriteString(w, "null")
			return
		}
		json.NewEncoder(w).Encode(f.docs)

	case r.Method == http.MethodPost && r.URL.Path == "/messages.json":
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nextKey++
		f.docs["-auto"+string(rune('a'+f.nextKey))] = doc
		io.WriteString(w, `{"name":"ok"}`)

	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts = append(f.puts, r.URL.Path+" "+string(body))
		io.WriteString(w, "true")

	case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, ".json"):
		key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/messages/"), ".json")
		delete(f.docs, key)
		io.WriteString(w, "null")

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeStore) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, logx.Nop())
}

func doc(sender, text string, ts time.Time, readBy ...string) map[string]any {
	d := map[string]any{
		"sender":    sender,
		"text":      text,
		"timestamp": ts.Format(time.RFC3339),
		"type":      "text",
	}
	if len(readBy) > 0 {
		rb := map[string]bool{}
		for _, id := range readBy {
			rb[id] = true
		}
		d["readBy"] = rb
	}
	return d
}

func TestGetMessagesSortedByTimestamp(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	f.add("k2", doc("B", "second", base.Add(time.Minute)))
	f.add("k1", doc("A", "first", base))
	f.add("k3", doc("C", "third", base.Add(2*time.Minute)))

	c := newTestClient(t, f)
	msgs, err := c.GetMessages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, want := range []string{"k1", "k2", "k3"} {
		if msgs[i].Key != want {
			t.Fatalf("order[%d] = %q, want %q", i, msgs[i].Key, want)
		}
	}
}

func TestGetMessagesNullCollection(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	f.nullBody = true
	c := newTestClient(t, f)
	msgs, err := c.GetMessages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("null collection yielded %d messages", len(msgs))
	}
}

func TestGetMessagesSkipsUndecodableEntry(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	f.add("good", doc("A", "hi", time.Now().UTC()))
	f.add("bad", map[string]any{"timestamp": "not-a-time"})

	c := newTestClient(t, f)
	msgs, err := c.GetMessages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Key != "good" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestGetUnreadMessagesFiltersByDevice(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := time.Now().UTC()
	f.add("read", doc("A", "seen", ts, "dev-1"))
	f.add("other", doc("B", "seen elsewhere", ts.Add(time.Second), "dev-2"))
	f.add("fresh", doc("C", "new", ts.Add(2*time.Second)))

	c := newTestClient(t, f)
	msgs, err := c.GetUnreadMessages(context.Background(), "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	keys := map[string]bool{}
	for _, m := range msgs {
		keys[m.Key] = true
	}
	if len(msgs) != 2 || !keys["other"] || !keys["fresh"] {
		t.Fatalf("unread = %v", keys)
	}
}

func TestMarkMessageReadIsTargetedPut(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	c := newTestClient(t, f)
	if err := c.MarkMessageRead(context.Background(), "-Nk1", "dev-1"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.puts) != 1 {
		t.Fatalf("puts = %v", f.puts)
	}
	if got, want := f.puts[0], "/messages/-Nk1/readBy/dev-1.json true"; got != want {
		t.Fatalf("put = %q, want %q", got, want)
	}
}

func TestMarkMessageReadRejectsEmptyArgs(t *testing.T) {
	t.Parallel()

	c := NewClient("http://unused.invalid", time.Second, logx.Nop())
	if err := c.MarkMessageRead(context.Background(), "", "dev"); err == nil {
		t.Fatal("empty key accepted")
	}
	if err := c.MarkMessageRead(context.Background(), "k", ""); err == nil {
		t.Fatal("empty device id accepted")
	}
}

func TestSendMessagePreMarksSender(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	c := newTestClient(t, f)
	if err := c.SendMessage(context.Background(), "Иванов", "привет", "dev-1"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.docs) != 1 {
		t.Fatalf("docs = %d", len(f.docs))
	}
	for _, d := range f.docs {
		rb, _ := d["readBy"].(map[string]any)
		if rb["dev-1"] != true {
			t.Fatalf("sender not pre-marked read: %v", d["readBy"])
		}
		if d["type"] != TypeText {
			t.Fatalf("type = %v", d["type"])
		}
	}
}

func TestSendFileMessageRejectsOversized(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, make([]byte, MaxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewClient("http://unused.invalid", time.Second, logx.Nop())
	err := c.SendFileMessage(context.Background(), "A", path, "dev")
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Fatalf("err = %v", err)
	}
}

func TestSendFileMessageEncodesPayload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "note.txt")
	content := []byte("расписание на неделю")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	f := newFakeStore()
	c := newTestClient(t, f)
	if err := c.SendFileMessage(context.Background(), "A", path, "dev-1"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d["fileName"] != "note.txt" {
			t.Fatalf("fileName = %v", d["fileName"])
		}
		data, _ := d["fileData"].(string)
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil || string(decoded) != string(content) {
			t.Fatalf("payload mismatch: %q err=%v", decoded, err)
		}
	}
}

func TestExtractFileStripsPathComponents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := Message{
		Key:      "k",
		Type:     TypeFile,
		FileName: "../../etc/passwd",
		FileData: base64.StdEncoding.EncodeToString([]byte("x")),
	}
	got, err := ExtractFile(m, dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "passwd") {
		t.Fatalf("extracted to %q", got)
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatal(err)
	}
}

func TestExtractFileRejectsNonFileMessage(t *testing.T) {
	t.Parallel()

	if _, err := ExtractFile(Message{Key: "k", Type: TypeText}, t.TempDir()); err == nil {
		t.Fatal("text message extracted")
	}
}

func TestCleanupOldMessagesSkipsPinned(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	old := time.Now().UTC().Add(-48 * time.Hour)
	f.add("stale", doc("A", "old", old))
	pinned := doc("B", "keep", old)
	pinned["pinned"] = true
	f.add("pinned", pinned)
	f.add("recent", doc("C", "new", time.Now().UTC()))

	c := newTestClient(t, f)
	n, err := c.CleanupOldMessages(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs["stale"]; ok {
		t.Fatal("stale message survived")
	}
	if _, ok := f.docs["pinned"]; !ok {
		t.Fatal("pinned message deleted")
	}
	if _, ok := f.docs["recent"]; !ok {
		t.Fatal("recent message deleted")
	}
}

func TestCleanupZeroRetentionIsNoop(t *testing.T) {
	t.Parallel()

	c := NewClient("http://unused.invalid", time.Second, logx.Nop())
	n, err := c.CleanupOldMessages(context.Background(), 0)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
