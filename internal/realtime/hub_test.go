package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestHubDeliversOnlySubscribedChannels(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + "/?channels=task-1,user-7"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("task-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(WorkspaceChannel(3), "task.updated", map[string]any{"id": 1})
	hub.Publish(TaskChannel(1), "task.updated", map[string]any{"id": 1})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read ws failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode ws message failed: %v", err)
	}
	if msg.Channel != "task-1" || msg.Type != "task.updated" || msg.ID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHubPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 1)
	done := make(chan struct{})
	go func() {
		hub.Publish("task-1", "a", nil)
		hub.Publish("task-1", "b", nil)
		hub.Publish("task-1", "c", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full queue")
	}
	if len(hub.queue) != 1 {
		t.Fatalf("expected one queued message, got %d", len(hub.queue))
	}
}

func TestHandleWSRequiresChannels(t *testing.T) {
	hub := NewHub(nil, 1)
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChannelNames(t *testing.T) {
	if TaskChannel(4) != "task-4" || WorkspaceChannel(2) != "workspace-2" || UserChannel(9) != "user-9" {
		t.Fatalf("unexpected channel names")
	}
}
