// Package notify delivers call lifecycle notifications to an external
// reporting endpoint. Delivery is fire-and-forget: failures are logged and
// never retried, and nothing on the audio path waits for it.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/phone-voice-lab/internal/logging"
)

// Utterance is one transcript line in the notification payload.
type Utterance struct {
	Name string `json:"name"`
	Said string `json:"said"`
}

// Notifier is the capability the bridge controller is handed. Tests
// substitute a recording stub.
type Notifier interface {
	CallStarted(userID string)
	CallComplete(userID, callSid string, transcript []Utterance)
}

// Nop is used when no notification endpoint is configured.
type Nop struct{}

func (Nop) CallStarted(string)                       {}
func (Nop) CallComplete(string, string, []Utterance) {}

// HTTPNotifier posts JSON notifications to a single endpoint.
type HTTPNotifier struct {
	URL    string
	Client *http.Client
}

// NewHTTPNotifier builds a notifier for the given endpoint URL.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type startedPayload struct {
	UserID string `json:"userId"`
	Action string `json:"_action"`
}

type completePayload struct {
	UserID        string      `json:"userId"`
	CallSid       string      `json:"callSid"`
	Action        string      `json:"_action"`
	Transcription []Utterance `json:"transcription"`
}

// CallStarted reports that a call session became active.
func (n *HTTPNotifier) CallStarted(userID string) {
	go n.post(startedPayload{UserID: userID, Action: "CALL_STARTED"})
}

// CallComplete reports the end of a call with its accumulated transcript.
// An empty transcript still posts; the receiver decides what that means.
func (n *HTTPNotifier) CallComplete(userID, callSid string, transcript []Utterance) {
	if transcript == nil {
		transcript = []Utterance{}
	}
	go n.post(completePayload{
		UserID:        userID,
		CallSid:       callSid,
		Action:        "CALL_COMPLETE",
		Transcription: transcript,
	})
}

func (n *HTTPNotifier) post(payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Warnw("notify: encode payload", "err", err)
		return
	}
	resp, err := n.Client.Post(n.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		logging.Warnw("notify: delivery failed", "url", n.URL, "err", err)
		return
	}
	// The response body is never inspected; the contract is one-way.
	_ = resp.Body.Close()
}
