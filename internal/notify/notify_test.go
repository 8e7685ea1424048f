package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// collect drains one request body from the test server within a deadline.
func collect(t *testing.T, ch <-chan []byte) map[string]interface{} {
	t.Helper()
	select {
	case body := <-ch:
		var m map[string]interface{}
		if err := json.Unmarshal(body, &m); err != nil {
			t.Fatalf("unmarshal notification: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func newSink(t *testing.T) (*httptest.Server, <-chan []byte) {
	t.Helper()
	ch := make(chan []byte, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- body
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestCallStartedPayload(t *testing.T) {
	srv, ch := newSink(t)
	n := NewHTTPNotifier(srv.URL)

	n.CallStarted("u1")

	m := collect(t, ch)
	if m["userId"] != "u1" {
		t.Fatalf("userId: %v", m["userId"])
	}
	if m["_action"] != "CALL_STARTED" {
		t.Fatalf("_action: %v", m["_action"])
	}
}

func TestCallCompletePayload(t *testing.T) {
	srv, ch := newSink(t)
	n := NewHTTPNotifier(srv.URL)

	n.CallComplete("u1", "CA42", []Utterance{
		{Name: "assistant", Said: "hello"},
		{Name: "caller", Said: "hi"},
	})

	m := collect(t, ch)
	if m["userId"] != "u1" || m["callSid"] != "CA42" {
		t.Fatalf("identifiers: %v", m)
	}
	if m["_action"] != "CALL_COMPLETE" {
		t.Fatalf("_action: %v", m["_action"])
	}
	lines, ok := m["transcription"].([]interface{})
	if !ok || len(lines) != 2 {
		t.Fatalf("transcription: %v", m["transcription"])
	}
	first := lines[0].(map[string]interface{})
	if first["name"] != "assistant" || first["said"] != "hello" {
		t.Fatalf("first utterance: %v", first)
	}
}

func TestCallCompleteEmptyTranscriptStillPosts(t *testing.T) {
	srv, ch := newSink(t)
	n := NewHTTPNotifier(srv.URL)

	n.CallComplete("u1", "CA42", nil)

	m := collect(t, ch)
	lines, ok := m["transcription"].([]interface{})
	if !ok {
		t.Fatalf("transcription should be an empty array, got %T", m["transcription"])
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty transcription, got %v", lines)
	}
}

func TestDeliveryFailureDoesNotPanic(t *testing.T) {
	n := NewHTTPNotifier("http://127.0.0.1:1/unreachable")
	n.Client.Timeout = 200 * time.Millisecond
	n.CallStarted("u1")
	n.CallComplete("u1", "CA1", nil)
	// fire-and-forget: nothing to assert beyond "no crash"; give the
	// goroutines a moment to run their failure paths.
	time.Sleep(300 * time.Millisecond)
}
