// Package bridge holds the per-call state record and the controller that
// relays audio between the telephony stream and the realtime speech model.
package bridge

// Speaker tags a transcript entry with its side of the conversation.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one completed utterance. Entries are appended in the
// order their transcription-completed events arrive, which is best-effort
// chronological: the model may finalize turns out of strict speaking order.
type TranscriptEntry struct {
	Speaker Speaker
	Text    string
}

// Session is the explicit per-call state record. It replaces what would
// otherwise be connection-scoped globals: one Session belongs to exactly
// one controller, which is its only writer.
//
// Invariants: pendingItemID is non-empty only while a response is in
// flight; the playback latch is set if and only if pendingItemID is set;
// latestInboundMS never decreases within a call segment and resets to 0
// on each new start event.
type Session struct {
	callSid   string
	streamSid string
	userID    string
	firstName string
	lastName  string

	started         bool
	latestInboundMS int64

	pendingItemID   string
	playbackStartMS int64
	playbackLatched bool

	ackQueue   []string
	transcript []TranscriptEntry
}

// NewSession returns an empty session awaiting its start event.
func NewSession() *Session {
	return &Session{}
}

// BeginStream initializes identifiers from a start event. A second start
// on the same connection begins a new call segment: inbound time and
// playback bookkeeping reset, but the transcript carries over until the
// connection ends.
func (s *Session) BeginStream(callSid, streamSid, userID, firstName, lastName string) {
	s.callSid = callSid
	s.streamSid = streamSid
	s.userID = userID
	s.firstName = firstName
	s.lastName = lastName
	s.started = true
	s.latestInboundMS = 0
	s.resetPlayback()
}

// ObserveMedia records the inbound timestamp of a media frame. Inbound
// timestamps are the call's wall clock reference for barge-in math.
func (s *Session) ObserveMedia(timestampMS int64) {
	s.latestInboundMS = timestampMS
}

// LatchPlayback records that a response audio delta was forwarded. The
// first delta of a response latches the playback start at the current
// inbound timestamp; later deltas only update the truncation target, since
// the model may emit multiple items within one response.
func (s *Session) LatchPlayback(itemID string) {
	if !s.playbackLatched {
		s.playbackStartMS = s.latestInboundMS
		s.playbackLatched = true
	}
	if itemID != "" {
		s.pendingItemID = itemID
	}
}

// PlaybackElapsedMS reports how much of the in-flight response the caller
// has actually heard. The second return is false if no playback is latched.
func (s *Session) PlaybackElapsedMS() (int64, bool) {
	if !s.playbackLatched {
		return 0, false
	}
	return s.latestInboundMS - s.playbackStartMS, true
}

// resetPlayback clears the in-flight response bookkeeping and drains the
// ack queue so a stale acknowledgement can't be attributed to a truncated
// response.
func (s *Session) resetPlayback() {
	s.pendingItemID = ""
	s.playbackStartMS = 0
	s.playbackLatched = false
	s.ackQueue = s.ackQueue[:0]
}

// ResetPlayback is the barge-in reset: see resetPlayback.
func (s *Session) ResetPlayback() {
	s.resetPlayback()
}

// PushAck appends a pending playback-acknowledgement token.
func (s *Session) PushAck(token string) {
	s.ackQueue = append(s.ackQueue, token)
}

// PopAck consumes the oldest pending token. Extra acknowledgements are
// no-ops; the queue never goes negative.
func (s *Session) PopAck() bool {
	if len(s.ackQueue) == 0 {
		return false
	}
	s.ackQueue = s.ackQueue[1:]
	return true
}

// Append adds one completed utterance to the transcript.
func (s *Session) Append(speaker Speaker, text string) {
	s.transcript = append(s.transcript, TranscriptEntry{Speaker: speaker, Text: text})
}

// Accessors. The controller goroutine is the only writer, so these are
// read-after-handler safe for tests and teardown.

func (s *Session) Started() bool          { return s.started }
func (s *Session) CallSid() string        { return s.callSid }
func (s *Session) StreamSid() string      { return s.streamSid }
func (s *Session) UserID() string         { return s.userID }
func (s *Session) FirstName() string      { return s.firstName }
func (s *Session) LastName() string       { return s.lastName }
func (s *Session) LatestInboundMS() int64 { return s.latestInboundMS }
func (s *Session) PendingItemID() string  { return s.pendingItemID }
func (s *Session) AckDepth() int          { return len(s.ackQueue) }

// PlaybackStartMS reports the latched playback start; ok is false when no
// response is in flight.
func (s *Session) PlaybackStartMS() (int64, bool) {
	return s.playbackStartMS, s.playbackLatched
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []TranscriptEntry {
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}
