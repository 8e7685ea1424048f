package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phone-voice-lab/internal/logging"
	"github.com/phone-voice-lab/internal/notify"
	"github.com/phone-voice-lab/internal/realtime"
	"github.com/phone-voice-lab/internal/telephony"
)

// markName is the token sent with every playback marker. The provider
// echoes it back once the audio queued before it has played out.
const markName = "responsePart"

// State is the call lifecycle. Terminal state is StateClosed; a session
// never reopens.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Telephony is the provider-side connection as the controller sees it.
// *telephony.Conn satisfies it; tests substitute a recording fake.
type Telephony interface {
	ReadMessage() ([]byte, error)
	SendMedia(streamSid, payload string) error
	SendMark(streamSid, name string) error
	SendClear(streamSid string) error
	Close(code int, reason string) error
}

// Model is the hosted-model connection as the controller sees it.
// *realtime.Client satisfies it.
type Model interface {
	ReadEvent() (realtime.ServerEvent, error)
	ConfigureSession(opts realtime.SessionOptions) error
	SeedConversation() error
	SendAudio(payload string) error
	Truncate(itemID string, contentIndex int, audioEndMS int64) error
	Close() error
}

// Options configures one controller instance.
type Options struct {
	// Session is the model session configuration sent at open.
	Session realtime.SessionOptions

	// SettleDelay is the pause between configuring the session and
	// seeding the first conversation item.
	SettleDelay time.Duration
}

// Controller owns exactly one call: one session record, one telephony
// connection, one model connection. All session mutation happens on the
// Run loop goroutine, which makes per-call ordering explicit without
// locks.
type Controller struct {
	id       string
	opts     Options
	tel      Telephony
	model    Model
	notifier notify.Notifier

	sess    *Session
	state   State
	modelUp bool

	completeOnce sync.Once
}

// New builds a controller for a freshly accepted call.
func New(tel Telephony, model Model, notifier notify.Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Controller{
		id:       uuid.NewString(),
		opts:     opts,
		tel:      tel,
		model:    model,
		notifier: notifier,
		sess:     NewSession(),
		state:    StateConnecting,
		modelUp:  true,
	}
}

// Session exposes the call state record, primarily for tests and logs.
func (c *Controller) Session() *Session { return c.sess }

// State reports the current lifecycle state.
func (c *Controller) State() State { return c.state }

// loop event wrappers. Each socket gets a reader goroutine that converts
// frames into these and feeds the single consumer in Run.
type loopEvent interface{ loopEvent() }

type inboundFrame struct{ ev telephony.Event }
type modelFrame struct{ ev realtime.ServerEvent }
type inboundClosed struct{ err error }
type modelClosed struct{ err error }

func (inboundFrame) loopEvent()  {}
func (modelFrame) loopEvent()    {}
func (inboundClosed) loopEvent() {}
func (modelClosed) loopEvent()   {}

// Run drives the call until both sockets are done. It always releases
// both connections before returning.
func (c *Controller) Run(ctx context.Context) {
	logging.Infow("bridge: call connected", "bridge_id", c.id)

	if err := c.model.ConfigureSession(c.opts.Session); err != nil {
		logging.Warnw("bridge: session configuration failed", "bridge_id", c.id, "err", err)
	}

	// Give the model a moment to apply the session before seeding the
	// greeting turn.
	seedTimer := time.AfterFunc(c.opts.SettleDelay, func() {
		if err := c.model.SeedConversation(); err != nil {
			logging.Warnw("bridge: seeding conversation failed", "bridge_id", c.id, "err", err)
		}
	})
	defer seedTimer.Stop()

	events := make(chan loopEvent, 64)

	go func() {
		for {
			data, err := c.tel.ReadMessage()
			if err != nil {
				events <- inboundClosed{err: err}
				return
			}
			ev, err := telephony.ParseEvent(data)
			if err != nil {
				logging.Warnw("bridge: dropping malformed inbound frame", "bridge_id", c.id, "err", err)
				continue
			}
			events <- inboundFrame{ev: ev}
		}
	}()

	go func() {
		for {
			ev, err := c.model.ReadEvent()
			if err != nil {
				events <- modelClosed{err: err}
				return
			}
			events <- modelFrame{ev: ev}
		}
	}()

	done := ctx.Done()
	inboundDone, modelDone := false, false
	for !(inboundDone && modelDone) {
		select {
		case <-done:
			// Shutdown: release both ends; the readers will deliver
			// their close events and drain the loop.
			_ = c.tel.Close(websocket.CloseGoingAway, "shutting down")
			_ = c.model.Close()
			done = nil
		case ev := <-events:
			switch ev := ev.(type) {
			case inboundFrame:
				c.handleInbound(ev.ev)
			case modelFrame:
				c.handleModel(ev.ev)
			case inboundClosed:
				inboundDone = true
				logging.Infow("bridge: telephony side closed", "bridge_id", c.id, "err", ev.err)
				_ = c.model.Close()
			case modelClosed:
				modelDone = true
				c.modelUp = false
				logging.Infow("bridge: model side closed", "bridge_id", c.id, "err", ev.err)
				c.finishCall()
			}
		}
	}

	c.state = StateClosed
	logging.Infow("bridge: call torn down", "bridge_id", c.id, "transcript_len", len(c.sess.transcript))
}

// handleInbound applies one telephony event to the session.
func (c *Controller) handleInbound(ev telephony.Event) {
	switch ev := ev.(type) {
	case telephony.StartEvent:
		c.handleStart(ev)
	case telephony.MediaEvent:
		c.sess.ObserveMedia(ev.TimestampMS)
		if !c.modelUp {
			// No buffering or backpressure: audio that arrives while
			// the model channel is down is dropped.
			return
		}
		if err := c.model.SendAudio(ev.Payload); err != nil {
			logging.Warnw("bridge: forwarding caller audio failed", "bridge_id", c.id, "err", err)
		}
	case telephony.MarkEvent:
		c.sess.PopAck()
	case telephony.StopEvent:
		logging.Infow("bridge: stop received", append([]interface{}{"bridge_id", c.id},
			logging.CallFields(c.sess.CallSid(), c.sess.StreamSid())...)...)
		_ = c.model.Close()
	case telephony.UnknownEvent:
		logging.Debugw("bridge: ignoring non-media event", "bridge_id", c.id, "event", ev.Name)
	}
}

func (c *Controller) handleStart(ev telephony.StartEvent) {
	if ev.StreamSid == "" {
		// The stream identifier addresses every playback command; a
		// start without one cannot be serviced.
		logging.Warnw("bridge: start without stream sid, rejecting", "bridge_id", c.id, "call_sid", ev.CallSid)
		_ = c.tel.Close(websocket.ClosePolicyViolation, "missing stream sid")
		return
	}
	c.sess.BeginStream(ev.CallSid, ev.StreamSid, ev.UserID, ev.FirstName, ev.LastName)
	c.state = StateActive
	fields := append([]interface{}{"bridge_id", c.id},
		append(logging.CallFields(ev.CallSid, ev.StreamSid),
			logging.SubjectFields(ev.UserID, ev.FirstName, ev.LastName)...)...)
	logging.Infow("bridge: stream started", fields...)
	c.notifier.CallStarted(ev.UserID)
}

// handleModel applies one model event to the session.
func (c *Controller) handleModel(ev realtime.ServerEvent) {
	switch ev := ev.(type) {
	case realtime.AudioDeltaEvent:
		c.handleAudioDelta(ev)
	case realtime.SpeechStartedEvent:
		c.handleBargeIn()
	case realtime.CallerTranscriptEvent:
		c.sess.Append(SpeakerCaller, ev.Text)
	case realtime.AssistantTranscriptEvent:
		c.sess.Append(SpeakerAssistant, ev.Text)
	case realtime.NotedEvent:
		logging.Infow("bridge: model event", "bridge_id", c.id, "type", ev.Type, "raw", string(ev.Raw))
	}
}

// handleAudioDelta relays response audio to the phone, latches playback
// timing on the first delta of a response, and queues a playback marker.
func (c *Controller) handleAudioDelta(ev realtime.AudioDeltaEvent) {
	if c.state != StateActive {
		// Audio before start has no stream to address.
		logging.Debugw("bridge: dropping model audio before start", "bridge_id", c.id)
		return
	}
	streamSid := c.sess.StreamSid()
	if err := c.tel.SendMedia(streamSid, ev.Delta); err != nil {
		logging.Warnw("bridge: sending playback audio failed", "bridge_id", c.id, "err", err)
		return
	}
	c.sess.LatchPlayback(ev.ItemID)
	if err := c.tel.SendMark(streamSid, markName); err != nil {
		logging.Warnw("bridge: sending playback marker failed", "bridge_id", c.id, "err", err)
		return
	}
	c.sess.PushAck(markName)
}

// handleBargeIn truncates the in-flight response when the caller starts
// talking over it. Elapsed inbound time since the playback latch is the
// audio the caller actually heard; everything past it is discarded on
// both legs, and the ack queue drains so stale marks can't be
// misattributed.
func (c *Controller) handleBargeIn() {
	itemID := c.sess.PendingItemID()
	elapsed, ok := c.sess.PlaybackElapsedMS()
	if itemID == "" || !ok {
		return
	}
	logging.Debugw("bridge: barge-in, truncating response",
		"bridge_id", c.id, "item_id", itemID, "audio_end_ms", elapsed)
	if err := c.model.Truncate(itemID, 0, elapsed); err != nil {
		logging.Warnw("bridge: truncate failed", "bridge_id", c.id, "err", err)
	}
	if err := c.tel.SendClear(c.sess.StreamSid()); err != nil {
		logging.Warnw("bridge: clear failed", "bridge_id", c.id, "err", err)
	}
	c.sess.ResetPlayback()
}

// finishCall fires the end-of-call notification exactly once and releases
// the telephony side. A connection that never saw a valid start produces
// no notification.
func (c *Controller) finishCall() {
	c.completeOnce.Do(func() {
		if c.sess.Started() {
			c.notifier.CallComplete(c.sess.UserID(), c.sess.CallSid(), utterances(c.sess.Transcript()))
		}
		_ = c.tel.Close(websocket.CloseNormalClosure, "call ended")
	})
}

// utterances converts the internal transcript to the notification wire
// shape.
func utterances(entries []TranscriptEntry) []notify.Utterance {
	out := make([]notify.Utterance, 0, len(entries))
	for _, e := range entries {
		out = append(out, notify.Utterance{Name: string(e.Speaker), Said: e.Text})
	}
	return out
}
