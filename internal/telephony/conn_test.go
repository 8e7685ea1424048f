package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair upgrades one connection and hands the test both ends: the wrapped
// client side and a channel of raw frames seen by the server side.
func wsPair(t *testing.T) (*Conn, chan string, chan int) {
	t.Helper()
	frames := make(chan string, 16)
	closed := make(chan int, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		conn.SetCloseHandler(func(code int, _ string) error {
			closed <- code
			return nil
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	raw, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := NewConn(raw)
	t.Cleanup(func() { _ = c.Close(websocket.CloseNormalClosure, "") })
	return c, frames, closed
}

func nextFrame(t *testing.T, frames chan string) string {
	t.Helper()
	select {
	case f := <-frames:
		// WriteJSON terminates frames with a newline.
		return strings.TrimSpace(f)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func TestConnSendMediaWireShape(t *testing.T) {
	c, frames, _ := wsPair(t)

	if err := c.SendMedia("MZ1", "cGF5bG9hZA=="); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	want := `{"event":"media","streamSid":"MZ1","media":{"payload":"cGF5bG9hZA=="}}`
	if got := nextFrame(t, frames); got != want {
		t.Fatalf("media frame:\n got %s\nwant %s", got, want)
	}
}

func TestConnSendMarkAndClearWireShape(t *testing.T) {
	c, frames, _ := wsPair(t)

	if err := c.SendMark("MZ1", "responsePart"); err != nil {
		t.Fatalf("SendMark: %v", err)
	}
	want := `{"event":"mark","streamSid":"MZ1","mark":{"name":"responsePart"}}`
	if got := nextFrame(t, frames); got != want {
		t.Fatalf("mark frame:\n got %s\nwant %s", got, want)
	}

	if err := c.SendClear("MZ1"); err != nil {
		t.Fatalf("SendClear: %v", err)
	}
	want = `{"event":"clear","streamSid":"MZ1"}`
	if got := nextFrame(t, frames); got != want {
		t.Fatalf("clear frame:\n got %s\nwant %s", got, want)
	}
}

func TestConnCloseSendsCodeOnce(t *testing.T) {
	c, _, closed := wsPair(t)

	if err := c.Close(websocket.ClosePolicyViolation, "missing stream sid"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(websocket.CloseNormalClosure, ""); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case code := <-closed:
		if code != websocket.ClosePolicyViolation {
			t.Fatalf("close code: %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close frame")
	}
}
