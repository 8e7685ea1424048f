package telephony

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps the provider-side websocket. Reads happen from exactly one
// goroutine; writes may come from the controller loop at any time and are
// serialized behind a mutex.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// NewConn wraps an upgraded websocket connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// ReadMessage blocks for the next frame from the provider.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// SendMedia forwards one opaque audio payload for playback to the caller.
func (c *Conn) SendMedia(streamSid, payload string) error {
	return c.writeJSON(outMedia{
		Event:     "media",
		StreamSid: streamSid,
		Media:     mediaPayload{Payload: payload},
	})
}

// SendMark queues a playback marker; the provider echoes it back as a mark
// event once the audio sent before it has finished playing.
func (c *Conn) SendMark(streamSid, name string) error {
	return c.writeJSON(outMark{
		Event:     "mark",
		StreamSid: streamSid,
		Mark:      markName{Name: name},
	})
}

// SendClear tells the provider to drop any buffered, not-yet-played audio.
func (c *Conn) SendClear(streamSid string) error {
	return c.writeJSON(outClear{Event: "clear", StreamSid: streamSid})
}

func (c *Conn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close sends a close frame with the given code and reason, then closes
// the underlying connection. Safe to call more than once.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
