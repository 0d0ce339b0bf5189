package gadget

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Conn is a STOMP session over a websocket.
type Conn struct {
	ws   *websocket.Conn
	host string

	mu sync.Mutex // serializes writes

	subsMu sync.Mutex
	subs   map[string]string // subscription id -> destination
}

// Dial opens a websocket to the broker and performs the STOMP handshake.
func Dial(ctx context.Context, rawURL string) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	ws, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient:   http.DefaultClient,
		Subprotocols: []string{"v12.stomp"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	c := &Conn{ws: ws, host: u.Host, subs: make(map[string]string)}
	if err := c.handshake(ctx); err != nil {
		ws.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	err := c.write(ctx, &Frame{
		Command: CmdConnect,
		Headers: map[string]string{
			"accept-version": "1.2",
			"host":           c.host,
			"heart-beat":     "0,0",
		},
	})
	if err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	frame, err := c.Receive(ctx)
	if err != nil {
		return fmt.Errorf("wait for CONNECTED: %w", err)
	}
	switch frame.Command {
	case CmdConnected:
		return nil
	case CmdError:
		return fmt.Errorf("broker refused connection: %s", frame.Header("message"))
	default:
		return fmt.Errorf("unexpected %s frame during handshake", frame.Command)
	}
}

// Addr returns the broker address the connection was made to.
func (c *Conn) Addr() string {
	return c.host
}

// Subscribe subscribes to a destination and returns the subscription ID.
// Messages are acknowledged automatically by the broker.
func (c *Conn) Subscribe(ctx context.Context, dest string) (string, error) {
	id := uuid.NewString()
	err := c.write(ctx, &Frame{
		Command: CmdSubscribe,
		Headers: map[string]string{
			"id":          id,
			"destination": dest,
			"ack":         "auto",
		},
	})
	if err != nil {
		return "", fmt.Errorf("subscribe to %s: %w", dest, err)
	}

	c.subsMu.Lock()
	c.subs[id] = dest
	c.subsMu.Unlock()
	return id, nil
}

// Unsubscribe removes a subscription.
func (c *Conn) Unsubscribe(ctx context.Context, id string) error {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()

	return c.write(ctx, &Frame{
		Command: CmdUnsubscribe,
		Headers: map[string]string{"id": id},
	})
}

// Send publishes a message to a destination.
func (c *Conn) Send(ctx context.Context, dest, contentType string, body []byte) error {
	if contentType == "" {
		contentType = "text/plain"
	}
	return c.write(ctx, &Frame{
		Command: CmdSend,
		Headers: map[string]string{
			"destination":  dest,
			"content-type": contentType,
		},
		Body: body,
	})
}

// Receive returns the next frame that is not a heart-beat.
func (c *Conn) Receive(ctx context.Context) (*Frame, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		frame, err := ParseFrame(data)
		if err != nil {
			return nil, err
		}
		if frame.IsHeartbeat() {
			continue
		}
		return frame, nil
	}
}

// Close drops open subscriptions, sends DISCONNECT and closes the websocket.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c.subsMu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subsMu.Unlock()

	// Best effort: the broker may already be gone
	for _, id := range ids {
		_ = c.Unsubscribe(ctx, id)
	}
	_ = c.write(ctx, &Frame{
		Command: CmdDisconnect,
		Headers: map[string]string{"receipt": uuid.NewString()},
	})
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) write(ctx context.Context, f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, f.Encode())
}
