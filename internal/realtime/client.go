package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phone-voice-lab/internal/logging"
)

const dialTimeout = 15 * time.Second

// SessionOptions is the one-time configuration sent when a model
// connection opens.
type SessionOptions struct {
	Voice              string
	Instructions       string
	Temperature        float64
	TranscriptionModel string
	AudioFormat        string
}

// Client is one websocket connection to the hosted realtime model. Reads
// happen from one goroutine via ReadEvent; sends are serialized behind a
// mutex and may come from any goroutine.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// Dial opens a model connection. The API key goes in the Authorization
// header; the beta header opts in to the realtime protocol.
func Dial(ctx context.Context, wsURL, apiKey string) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime model: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime model: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing websocket connection. Tests use this to
// point the client at a local fake model.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// ConfigureSession sends the session.update establishing codecs, voice,
// turn detection, transcription, and the instruction prompt.
func (c *Client) ConfigureSession(opts SessionOptions) error {
	return c.writeJSON(sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			TurnDetection:           turnDetection{Type: "server_vad"},
			InputAudioFormat:        opts.AudioFormat,
			InputAudioTranscription: transcription{Model: opts.TranscriptionModel},
			OutputAudioFormat:       opts.AudioFormat,
			Voice:                   opts.Voice,
			Instructions:            opts.Instructions,
			Modalities:              []string{"text", "audio"},
			Temperature:             opts.Temperature,
		},
	})
}

// SeedConversation plants a synthetic first user turn and requests a
// response so the assistant greets the caller instead of waiting.
func (c *Client) SeedConversation() error {
	item := itemCreate{
		Type: "conversation.item.create",
		Item: convItem{
			Type: "message",
			Role: "user",
			Content: []itemContent{{
				Type: "input_text",
				Text: "Greet the user and start the interview process as defined.",
			}},
		},
	}
	if err := c.writeJSON(item); err != nil {
		return err
	}
	return c.writeJSON(responseCreate{Type: "response.create"})
}

// SendAudio appends one opaque encoded audio chunk to the model's input
// buffer.
func (c *Client) SendAudio(payload string) error {
	return c.writeJSON(audioAppend{Type: "input_audio_buffer.append", Audio: payload})
}

// Truncate discards the unplayed tail of an in-flight response past the
// given elapsed-audio cutoff.
func (c *Client) Truncate(itemID string, contentIndex int, audioEndMS int64) error {
	return c.writeJSON(itemTruncate{
		Type:         "conversation.item.truncate",
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMS:   audioEndMS,
	})
}

// ReadEvent blocks for the next model event the bridge cares about.
// Malformed frames are logged and skipped; they never end the connection.
// A returned error means the socket itself is done.
func (c *Client) ReadEvent() (ServerEvent, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		ev, err := decodeServerEvent(data)
		if err != nil {
			logging.Warnw("realtime: dropping malformed model event", "err", err, "raw", string(data))
			continue
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close sends a normal-closure frame and closes the connection. Safe to
// call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "CALL_ENDED"),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
