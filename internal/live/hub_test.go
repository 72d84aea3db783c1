package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
)

func fakeClient(id string) *Client {
	return &Client{ID: id, send: make(chan Message, 1)}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	a, b := fakeClient("a"), fakeClient("b")
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(Message{Event: "x"})
	for _, c := range []*Client{a, b} {
		if msg := <-c.send; msg.Event != "x" {
			t.Fatalf("client %s got %+v", c.ID, msg)
		}
	}

	hub.Unregister(a)
	hub.Unregister(a)
	if hub.Count() != 1 {
		t.Fatalf("count = %d", hub.Count())
	}
	if _, ok := <-a.send; ok {
		t.Fatal("send channel not closed")
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	c := fakeClient("slow")
	hub.Register(c)
	hub.Broadcast(Message{Event: "1"})
	hub.Broadcast(Message{Event: "2"})
	if msg := <-c.send; msg.Event != "1" {
		t.Fatalf("got %+v", msg)
	}
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected %+v", msg)
	default:
	}
}

type stubPublisher struct {
	err  error
	msgs []Message
}

func (s *stubPublisher) Publish(_ context.Context, msg Message) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestNotifyCheckInUsesPublisher(t *testing.T) {
	pub := &stubPublisher{}
	hub := NewHub(pub, zerolog.Nop())
	c := fakeClient("a")
	hub.Register(c)

	hub.NotifyCheckIn(context.Background(), attendance.LogEntry{Name: "Alice Johnson"})
	if len(pub.msgs) != 1 || pub.msgs[0].Event != EventCheckIn {
		t.Fatalf("published %+v", pub.msgs)
	}
	select {
	case msg := <-c.send:
		t.Fatalf("relay mode delivered locally: %+v", msg)
	default:
	}

	pub.err = errors.New("redis down")
	hub.NotifyCheckIn(context.Background(), attendance.LogEntry{Name: "Bob Williams"})
	msg := <-c.send
	var entry attendance.LogEntry
	if err := json.Unmarshal(msg.Data, &entry); err != nil || entry.Name != "Bob Williams" {
		t.Fatalf("fallback delivered %s, %v", msg.Data, err)
	}
}

func TestServeWSStreamsMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, zerolog.Nop())
	r := gin.New()
	r.GET("/live", ServeWS(hub, nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/live", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg, _ := NewMessage(EventCheckIn, map[string]string{"name": "Alice Johnson"})
	hub.Broadcast(msg)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event != EventCheckIn || !strings.Contains(string(got.Data), "Alice Johnson") {
		t.Fatalf("got %+v", got)
	}
}

func TestUpgraderChecksOrigin(t *testing.T) {
	up := newUpgrader([]string{"https://dash.example"})
	req := httptest.NewRequest("GET", "/live", nil)
	req.Header.Set("Origin", "https://evil.example")
	if up.CheckOrigin(req) {
		t.Fatal("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://dash.example")
	if !up.CheckOrigin(req) {
		t.Fatal("allowed origin rejected")
	}
}
