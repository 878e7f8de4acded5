package channel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/channel"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/protocol"
)

// testServer upgrades one connection and hands it to fn.
func testServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectIsIdempotent(t *testing.T) {
	connCount := 0
	var mu sync.Mutex
	srv := testServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		mu.Unlock()
		conn.ReadMessage()
	})

	ch := channel.New(wsURL(srv))
	ctx := context.Background()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer ch.Close()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if connCount != 1 {
		t.Errorf("server saw %d connections, want 1", connCount)
	}
}

func TestInboundMessagesAreDecoded(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"interview_ready","current_question_text":"Tell me about yourself","question_number":1,"questions_total":2}`))
		conn.ReadMessage()
	})

	events := make(chan protocol.Event, 1)
	ch := channel.New(wsURL(srv))
	ch.OnMessage(func(ev protocol.Event) {
		events <- ev
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()

	select {
	case ev := <-events:
		if ev.Kind != protocol.EventInterviewReady {
			t.Errorf("kind = %v, want interview_ready", ev.Kind)
		}
		if ev.Msg.CurrentQuestionText != "Tell me about yourself" {
			t.Errorf("question = %q", ev.Msg.CurrentQuestionText)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSendJSONAndBinary(t *testing.T) {
	type recv struct {
		msgType int
		data    []byte
	}
	received := make(chan recv, 2)
	srv := testServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- recv{mt, data}
		}
	})

	ch := channel.New(wsURL(srv))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()

	ch.SendJSON(protocol.TTSComplete())
	frame := make([]byte, 640)
	ch.SendBinary(frame)

	for i := 0; i < 2; i++ {
		select {
		case r := <-received:
			switch r.msgType {
			case websocket.TextMessage:
				var ctrl protocol.ControlFrame
				if err := json.Unmarshal(r.data, &ctrl); err != nil {
					t.Fatalf("unmarshal control: %v", err)
				}
				if ctrl.Type != protocol.TypeTTSComplete {
					t.Errorf("control type = %q", ctrl.Type)
				}
			case websocket.BinaryMessage:
				if len(r.data) != 640 {
					t.Errorf("binary frame = %d bytes, want 640", len(r.data))
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for server receive")
		}
	}
}

func TestSendWhileClosedDropsSilently(t *testing.T) {
	ch := channel.New("ws://127.0.0.1:1/nowhere")
	// Must not panic or block.
	ch.SendJSON(protocol.TTSComplete())
	ch.SendBinary([]byte{0, 0})
	ch.Close()
}

func TestUnexpectedCloseSurfacesError(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		// Drop the connection without a close handshake.
		conn.Close()
	})

	closed := make(chan error, 1)
	ch := channel.New(wsURL(srv))
	ch.OnClosed(func(err error) {
		closed <- err
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Error("unexpected close must surface a non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close callback")
	}
	if ch.IsOpen() {
		t.Error("channel should not report open after close")
	}
}

func TestDeliberateCloseReportsNil(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		// Echo the close handshake.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	closed := make(chan error, 1)
	ch := channel.New(wsURL(srv))
	ch.OnClosed(func(err error) {
		closed <- err
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ch.Close()
	ch.Close() // idempotent

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("deliberate close reported error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close callback")
	}
}
