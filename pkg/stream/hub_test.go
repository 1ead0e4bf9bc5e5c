package stream

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawEvent struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	Seq       int64           `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(Config{Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled)})
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	before := hub.ClientCount()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return hub.ClientCount() == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()

	var event rawEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHub_BroadcastsProgress(t *testing.T) {
	hub, srv := newTestHub(t)
	reg := progress.NewRegistry()
	hub.Attach(reg)

	conn := dial(t, hub, srv)

	snapshot := readEvent(t, conn)
	assert.Equal(t, "event", snapshot.Type)
	assert.Equal(t, EventSnapshot, snapshot.Event)
	assert.JSONEq(t, `{}`, string(snapshot.Data))

	_, err := reg.Start("build", progress.StartOptions{Total: 10, Message: "compiling"})
	require.NoError(t, err)
	five := 5
	_, err = reg.Update("build", progress.Update{Current: &five})
	require.NoError(t, err)

	started := readEvent(t, conn)
	assert.Equal(t, EventProgress, started.Event)
	assert.NotZero(t, started.Timestamp)

	var rec progress.Record
	require.NoError(t, json.Unmarshal(started.Data, &rec))
	assert.Equal(t, "build", rec.Name)
	assert.Equal(t, progress.StatusRunning, rec.Status)
	assert.Equal(t, "compiling", rec.Message)

	updated := readEvent(t, conn)
	assert.Greater(t, updated.Seq, started.Seq)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(updated.Data, &fields))
	assert.Equal(t, 50.0, fields["progress_percentage"])
	assert.Equal(t, true, fields["is_running"])
}

func TestHub_SnapshotContainsTrackedRecords(t *testing.T) {
	hub, srv := newTestHub(t)
	reg := progress.NewRegistry()
	_, err := reg.Start("existing", progress.StartOptions{Total: 3})
	require.NoError(t, err)
	hub.Attach(reg)

	conn := dial(t, hub, srv)

	snapshot := readEvent(t, conn)
	require.Equal(t, EventSnapshot, snapshot.Event)

	var records map[string]progress.Record
	require.NoError(t, json.Unmarshal(snapshot.Data, &records))
	require.Contains(t, records, "existing")
	assert.Equal(t, 3, records["existing"].Total)
}

func TestHub_MultipleClients(t *testing.T) {
	hub, srv := newTestHub(t)

	first := dial(t, hub, srv)
	second := dial(t, hub, srv)
	assert.Equal(t, 2, hub.ClientCount())

	hub.Broadcast("custom", map[string]any{"ok": true})

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, "custom", event.Event)
		assert.JSONEq(t, `{"ok":true}`, string(event.Data))
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, hub, srv)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting with no clients is a no-op.
	hub.Broadcast(EventProgress, map[string]any{})
}

func TestHub_Close(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestHub_FullQueueDrops(t *testing.T) {
	hub := NewHub(Config{Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled), BufferSize: 1})

	c := &client{id: "slow", send: make(chan []byte, 1)}
	hub.clients[c.id] = c

	hub.Broadcast("one", nil)
	hub.Broadcast("two", nil)

	require.Len(t, c.send, 1)
	var event EventMessage
	require.NoError(t, json.Unmarshal(<-c.send, &event))
	assert.Equal(t, "one", event.Event)
}

func TestHub_ConnectDuringUpdatesSeesFinalState(t *testing.T) {
	hub := NewHub(Config{
		Logger:     zerolog.New(os.Stdout).Level(zerolog.Disabled),
		BufferSize: 1024,
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	reg := progress.NewRegistry()
	_, err := reg.Start("op", progress.StartOptions{Total: 200})
	require.NoError(t, err)
	hub.Attach(reg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		one := 1
		for i := 0; i < 200; i++ {
			_, _ = reg.Update("op", progress.Update{Increment: &one})
		}
	}()

	conn := dial(t, hub, srv)
	<-done

	latest := -1
	var lastSeq int64
	for latest != 200 {
		event := readEvent(t, conn)
		assert.Greater(t, event.Seq, lastSeq)
		lastSeq = event.Seq

		switch event.Event {
		case EventSnapshot:
			var records map[string]progress.Record
			require.NoError(t, json.Unmarshal(event.Data, &records))
			latest = records["op"].Current
		case EventProgress:
			var rec progress.Record
			require.NoError(t, json.Unmarshal(event.Data, &rec))
			require.Equal(t, latest+1, rec.Current, "updates after the snapshot arrive in order without gaps")
			latest = rec.Current
		}
	}
}
