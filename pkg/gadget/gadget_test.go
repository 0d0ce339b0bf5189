package gadget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"nhooyr.io/websocket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const testTimeout = 5 * time.Second

// brokerSession is one client connection to the fake broker.
type brokerSession struct {
	ws           *websocket.Conn
	subscription string
	destination  string
	frames       chan *Frame
}

func (s *brokerSession) deliver(t *testing.T, body string) {
	t.Helper()
	frame := &Frame{
		Command: CmdMessage,
		Headers: map[string]string{
			"subscription": s.subscription,
			"destination":  s.destination,
			"message-id":   "broker-" + s.subscription,
		},
		Body: []byte(body),
	}
	require.NoError(t, s.ws.Write(context.Background(), websocket.MessageText, frame.Encode()))
}

func (s *brokerSession) next(t *testing.T) *Frame {
	t.Helper()
	select {
	case f, ok := <-s.frames:
		require.True(t, ok, "session closed")
		return f
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

// fakeBroker is a minimal STOMP-over-websocket broker.
type fakeBroker struct {
	srv      *httptest.Server
	refuse   string
	sessions chan *brokerSession
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{sessions: make(chan *brokerSession, 4)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"v12.stomp"}})
	if err != nil {
		return
	}
	defer ws.Close(websocket.StatusInternalError, "")
	ctx := r.Context()

	if f := readFrame(ctx, ws); f == nil || f.Command != CmdConnect {
		return
	}
	if b.refuse != "" {
		reply := &Frame{Command: CmdError, Headers: map[string]string{"message": b.refuse}}
		_ = ws.Write(ctx, websocket.MessageText, reply.Encode())
		ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	connected := &Frame{Command: CmdConnected, Headers: map[string]string{"version": "1.2"}}
	if err := ws.Write(ctx, websocket.MessageText, connected.Encode()); err != nil {
		return
	}

	sub := readFrame(ctx, ws)
	if sub == nil || sub.Command != CmdSubscribe {
		return
	}
	sess := &brokerSession{
		ws:           ws,
		subscription: sub.Header("id"),
		destination:  sub.Header("destination"),
		frames:       make(chan *Frame, 16),
	}
	b.sessions <- sess

	defer close(sess.frames)
	for {
		f := readFrame(ctx, ws)
		if f == nil {
			return
		}
		sess.frames <- f
	}
}

func (b *fakeBroker) session(t *testing.T) *brokerSession {
	t.Helper()
	select {
	case s := <-b.sessions:
		return s
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for gadget to subscribe")
		return nil
	}
}

func readFrame(ctx context.Context, ws *websocket.Conn) *Frame {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return nil
		}
		f, err := ParseFrame(data)
		if err != nil {
			return nil
		}
		if !f.IsHeartbeat() {
			return f
		}
	}
}

func receive(t *testing.T, ch <-chan Directive) Directive {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for directive")
		return Directive{}
	}
}

func directiveJSON(messageID, endpointID, payload string) string {
	d := map[string]any{
		"header": map[string]string{
			"namespace": "Custom.Mindstorms.Gadget",
			"name":      "control",
			"messageId": messageID,
		},
		"endpoint": map[string]string{"endpointId": endpointID},
		"payload":  json.RawMessage(payload),
	}
	data, _ := json.Marshal(d)
	return string(data)
}

func TestDial_Handshake(t *testing.T) {
	b := newFakeBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	conn, err := Dial(ctx, b.url())
	require.NoError(t, err)

	id, err := conn.Subscribe(ctx, "/topic/test")
	require.NoError(t, err)
	sess := b.session(t)
	assert.Equal(t, id, sess.subscription)
	assert.Equal(t, "/topic/test", sess.destination)

	require.NoError(t, conn.Send(ctx, "/topic/out", "", []byte("ping")))
	f := sess.next(t)
	assert.Equal(t, CmdSend, f.Command)
	assert.Equal(t, "/topic/out", f.Header("destination"))
	assert.Equal(t, "text/plain", f.Header("content-type"))
	assert.Equal(t, "ping", string(f.Body))

	require.NoError(t, conn.Close())
	f = sess.next(t)
	assert.Equal(t, CmdUnsubscribe, f.Command)
	assert.Equal(t, id, f.Header("id"))
	assert.Equal(t, CmdDisconnect, sess.next(t).Command)
}

func TestDial_Refused(t *testing.T) {
	b := newFakeBroker(t)
	b.refuse = "access denied"
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, err := Dial(ctx, b.url())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

// lifecycle records callbacks fired by the gadget.
type lifecycle struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	connectedCh  chan string
}

func newLifecycle(g *Gadget) *lifecycle {
	l := &lifecycle{connectedCh: make(chan string, 4)}
	g.OnConnected(func(addr string) {
		l.mu.Lock()
		l.connected = append(l.connected, addr)
		l.mu.Unlock()
		l.connectedCh <- addr
	})
	g.OnDisconnected(func(addr string) {
		l.mu.Lock()
		l.disconnected = append(l.disconnected, addr)
		l.mu.Unlock()
	})
	return l
}

func (l *lifecycle) waitConnected(t *testing.T) string {
	t.Helper()
	select {
	case addr := <-l.connectedCh:
		return addr
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for connection")
		return ""
	}
}

func startGadget(t *testing.T, g *Gadget) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-errCh:
			return err
		case <-time.After(testTimeout):
			t.Fatal("gadget did not stop")
			return nil
		}
	}
}

func TestGadget_DispatchesDirectives(t *testing.T) {
	b := newFakeBroker(t)
	g := New("Bot", Config{URL: b.url(), DirectiveTopic: "/topic/d", EndpointID: "ev3-1"}, nil)
	life := newLifecycle(g)

	got := make(chan Directive, 8)
	g.Handle("Custom.Mindstorms.Gadget", "control", func(ctx context.Context, d Directive) error {
		got <- d
		return nil
	})

	stop := startGadget(t, g)
	sess := b.session(t)
	assert.Equal(t, "/topic/d", sess.destination)
	addr := life.waitConnected(t)
	assert.Equal(t, strings.TrimPrefix(b.srv.URL, "http://"), addr)
	assert.True(t, g.Connected())

	sess.deliver(t, directiveJSON("m-1", "ev3-1", `{"type":"Go"}`))
	// Dropped: redelivery, other endpoint, no handler, malformed
	sess.deliver(t, directiveJSON("m-1", "ev3-1", `{"type":"Go"}`))
	sess.deliver(t, directiveJSON("m-2", "other", `{"type":"Back"}`))
	sess.deliver(t, `{"header":{"namespace":"Alexa.Gadget","name":"x"}}`)
	sess.deliver(t, `garbage`)
	// No endpoint means broadcast
	sess.deliver(t, directiveJSON("m-3", "", `{"type":"Left"}`))

	first := receive(t, got)
	assert.Equal(t, "m-1", first.Header.MessageID)
	assert.JSONEq(t, `{"type":"Go"}`, string(first.Payload))
	second := receive(t, got)
	assert.Equal(t, "m-3", second.Header.MessageID)
	assert.Empty(t, got)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.False(t, g.Connected())

	life.mu.Lock()
	defer life.mu.Unlock()
	assert.Equal(t, []string{addr}, life.connected)
	assert.Equal(t, []string{addr}, life.disconnected)
}

func TestGadget_RedeliversRejectedDirective(t *testing.T) {
	b := newFakeBroker(t)
	g := New("Bot", Config{URL: b.url(), DirectiveTopic: "/topic/d"}, nil)
	life := newLifecycle(g)

	got := make(chan Directive, 8)
	var calls int
	g.Handle("Custom.Mindstorms.Gadget", "control", func(ctx context.Context, d Directive) error {
		calls++
		got <- d
		if calls == 1 {
			return errors.New("busy")
		}
		return nil
	})

	stop := startGadget(t, g)
	sess := b.session(t)
	life.waitConnected(t)

	for range 3 {
		sess.deliver(t, directiveJSON("m-1", "", `{"type":"Go"}`))
	}
	sess.deliver(t, directiveJSON("m-2", "", `{"type":"Back"}`))

	assert.Equal(t, "m-1", receive(t, got).Header.MessageID)
	assert.Equal(t, "m-1", receive(t, got).Header.MessageID)
	assert.Equal(t, "m-2", receive(t, got).Header.MessageID)
	assert.Empty(t, got)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Equal(t, 3, calls)
}

func TestGadget_Reconnects(t *testing.T) {
	b := newFakeBroker(t)
	g := New("Bot", Config{
		URL:            b.url(),
		DirectiveTopic: "/topic/d",
		ReconnectDelay: 10 * time.Millisecond,
	}, nil)
	life := newLifecycle(g)

	stop := startGadget(t, g)
	first := b.session(t)
	life.waitConnected(t)

	first.ws.Close(websocket.StatusGoingAway, "restart")

	b.session(t)
	life.waitConnected(t)

	assert.ErrorIs(t, stop(), context.Canceled)

	life.mu.Lock()
	defer life.mu.Unlock()
	assert.Len(t, life.connected, 2)
	assert.Len(t, life.disconnected, 2)
}

func TestGadget_SendEvent(t *testing.T) {
	b := newFakeBroker(t)
	g := New("Bot", Config{URL: b.url(), DirectiveTopic: "/topic/d", EventTopic: "/topic/e", EndpointID: "ev3-1"}, nil)
	life := newLifecycle(g)

	err := g.SendEvent(context.Background(), "Custom.Mindstorms.Gadget", "status", map[string]string{"type": "Go"})
	require.ErrorIs(t, err, ErrNotConnected)

	stop := startGadget(t, g)
	sess := b.session(t)
	life.waitConnected(t)

	err = g.SendEvent(context.Background(), "Custom.Mindstorms.Gadget", "status", map[string]string{"type": "Go"})
	require.NoError(t, err)

	f := sess.next(t)
	assert.Equal(t, CmdSend, f.Command)
	assert.Equal(t, "/topic/e", f.Header("destination"))
	assert.Equal(t, "application/json", f.Header("content-type"))

	var ev Event
	require.NoError(t, json.Unmarshal(f.Body, &ev))
	assert.Equal(t, "status", ev.Header.Name)
	assert.NotEmpty(t, ev.Header.MessageID)
	assert.Equal(t, "ev3-1", ev.Endpoint.EndpointID)
	assert.JSONEq(t, `{"type":"Go"}`, string(ev.Payload))

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestGadget_RunStopsWhileBrokerDown(t *testing.T) {
	g := New("Bot", Config{URL: "ws://127.0.0.1:1/stomp", ReconnectDelay: time.Hour}, nil)

	stop := startGadget(t, g)
	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)
	assert.False(t, g.Connected())
}
