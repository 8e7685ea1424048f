// Package telephony adapts the provider's media-stream websocket protocol.
// Inbound frames are JSON envelopes discriminated by an "event" field;
// outbound frames address the stream by its streamSid.
package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event is the tagged union of inbound media-stream events. Exhaustive
// handling lives in the bridge controller; anything the parser does not
// recognize surfaces as UnknownEvent so callers log it and move on.
type Event interface {
	event() string
}

// StartEvent begins a call segment on the connection.
type StartEvent struct {
	CallSid   string
	StreamSid string
	UserID    string
	FirstName string
	LastName  string
}

func (StartEvent) event() string { return "start" }

// MediaEvent carries one opaque encoded audio chunk from the caller.
type MediaEvent struct {
	TimestampMS int64
	Payload     string
}

func (MediaEvent) event() string { return "media" }

// MarkEvent acknowledges that a previously sent playback marker finished
// playing on the phone.
type MarkEvent struct {
	Name string
}

func (MarkEvent) event() string { return "mark" }

// StopEvent signals the end of call audio.
type StopEvent struct{}

func (StopEvent) event() string { return "stop" }

// UnknownEvent is any envelope with an unrecognized discriminator.
type UnknownEvent struct {
	Name string
}

func (UnknownEvent) event() string { return "unknown" }

// flexMS decodes a millisecond timestamp that the provider sends either as
// a JSON number or as a numeric string.
type flexMS int64

func (m *flexMS) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q is not an integer: %w", s, err)
	}
	*m = flexMS(n)
	return nil
}

// envelope mirrors the wire layout of inbound frames. Only the sections
// relevant to the discriminator are populated.
type envelope struct {
	Event string `json:"event"`
	Start *struct {
		CallSid          string            `json:"callSid"`
		StreamSid        string            `json:"streamSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
	Media *struct {
		Timestamp flexMS `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
	StreamSid string `json:"streamSid"`
}

// ParseEvent decodes one inbound frame into its typed event. A decode
// failure means the frame is malformed; per the error model the caller
// logs and drops it without ending the call.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode media-stream envelope: %w", err)
	}
	switch env.Event {
	case "start":
		ev := StartEvent{StreamSid: env.StreamSid}
		if env.Start != nil {
			ev.CallSid = env.Start.CallSid
			if env.Start.StreamSid != "" {
				ev.StreamSid = env.Start.StreamSid
			}
			ev.UserID = env.Start.CustomParameters["userId"]
			ev.FirstName = env.Start.CustomParameters["firstName"]
			ev.LastName = env.Start.CustomParameters["lastName"]
		}
		return ev, nil
	case "media":
		ev := MediaEvent{}
		if env.Media != nil {
			ev.TimestampMS = int64(env.Media.Timestamp)
			ev.Payload = env.Media.Payload
		}
		return ev, nil
	case "mark":
		ev := MarkEvent{}
		if env.Mark != nil {
			ev.Name = env.Mark.Name
		}
		return ev, nil
	case "stop":
		return StopEvent{}, nil
	case "":
		return nil, fmt.Errorf("media-stream envelope missing event field")
	default:
		return UnknownEvent{Name: env.Event}, nil
	}
}

// Outbound envelopes.

type outMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outMark struct {
	Event     string   `json:"event"`
	StreamSid string   `json:"streamSid"`
	Mark      markName `json:"mark"`
}

type markName struct {
	Name string `json:"name"`
}

type outClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}
