// Package gadget connects the robot to a voice assistant as a gadget.
//
// Directives from the voice skill are relayed by a STOMP broker reachable over
// a websocket. The gadget subscribes to its directive topic, dispatches each
// directive to the handler registered for its namespace and name, and reports
// connection changes through lifecycle callbacks.
package gadget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when sending while no broker session exists.
var ErrNotConnected = errors.New("gadget is not connected")

// Config holds the broker connection settings.
type Config struct {
	URL            string        `json:"url" mapstructure:"url"`
	DirectiveTopic string        `json:"directive_topic" mapstructure:"directive_topic"`
	EventTopic     string        `json:"event_topic" mapstructure:"event_topic"`
	EndpointID     string        `json:"endpoint_id" mapstructure:"endpoint_id"`
	ReconnectDelay time.Duration `json:"reconnect_delay" mapstructure:"reconnect_delay"`
	DedupeWindow   time.Duration `json:"dedupe_window" mapstructure:"dedupe_window"`
}

// DefaultConfig returns the default topics and timings; URL is left empty.
func DefaultConfig() Config {
	return Config{
		DirectiveTopic: "/topic/gadget-directives",
		EventTopic:     "/topic/gadget-events",
		ReconnectDelay: 5 * time.Second,
		DedupeWindow:   5 * time.Minute,
	}
}

// Gadget receives directives from the broker and dispatches them.
type Gadget struct {
	cfg    Config
	name   string
	logger *zap.Logger

	handlers       map[string]DirectiveFunc
	onConnected    func(addr string)
	onDisconnected func(addr string)
	seen           *cache.Cache

	mu   sync.RWMutex
	conn *Conn
}

// New creates a gadget with the given friendly name.
func New(name string, cfg Config, logger *zap.Logger) *Gadget {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = DefaultConfig().DedupeWindow
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}

	return &Gadget{
		cfg:      cfg,
		name:     name,
		logger:   logger.Named("gadget"),
		handlers: make(map[string]DirectiveFunc),
		seen:     cache.New(cfg.DedupeWindow, 2*cfg.DedupeWindow),
	}
}

// Name returns the gadget's friendly name.
func (g *Gadget) Name() string {
	return g.name
}

// OnConnected registers the callback fired after a broker session is established.
func (g *Gadget) OnConnected(fn func(addr string)) {
	g.onConnected = fn
}

// OnDisconnected registers the callback fired when the broker session ends.
func (g *Gadget) OnDisconnected(fn func(addr string)) {
	g.onDisconnected = fn
}

// Handle registers the handler for directives with the given namespace and name.
// Handlers must be registered before Run. A directive is dropped as a
// redelivery only once its handler has returned nil.
func (g *Gadget) Handle(namespace, name string, fn DirectiveFunc) {
	g.handlers[directiveKey(namespace, name)] = fn
}

// Connected reports whether a broker session is active.
func (g *Gadget) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn != nil
}

// Run connects to the broker and dispatches directives until ctx is cancelled,
// reconnecting after each connection loss.
func (g *Gadget) Run(ctx context.Context) error {
	for {
		err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("Broker session ended",
			zap.Error(err),
			zap.Duration("retry_in", g.cfg.ReconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.cfg.ReconnectDelay):
		}
	}
}

// session runs a single broker connection until it fails or ctx is done.
func (g *Gadget) session(ctx context.Context) error {
	conn, err := Dial(ctx, g.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Subscribe(ctx, g.cfg.DirectiveTopic); err != nil {
		return err
	}

	g.setConn(conn)
	g.logger.Info("Connected to broker",
		zap.String("addr", conn.Addr()),
		zap.String("topic", g.cfg.DirectiveTopic))
	if g.onConnected != nil {
		g.onConnected(conn.Addr())
	}
	defer func() {
		g.setConn(nil)
		if g.onDisconnected != nil {
			g.onDisconnected(conn.Addr())
		}
	}()

	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		switch frame.Command {
		case CmdMessage:
			g.dispatch(ctx, frame)
		case CmdError:
			return fmt.Errorf("broker error: %s", frame.Header("message"))
		default:
			g.logger.Debug("Ignoring frame", zap.String("command", frame.Command))
		}
	}
}

func (g *Gadget) setConn(conn *Conn) {
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
}

func (g *Gadget) dispatch(ctx context.Context, frame *Frame) {
	d, err := DecodeDirective(frame.Body)
	if err != nil {
		g.logger.Warn("Dropping malformed directive", zap.Error(err))
		return
	}

	if d.Endpoint.EndpointID != "" && g.cfg.EndpointID != "" && d.Endpoint.EndpointID != g.cfg.EndpointID {
		g.logger.Debug("Ignoring directive for another endpoint",
			zap.String("endpoint", d.Endpoint.EndpointID))
		return
	}

	id := d.Header.MessageID
	if _, done := g.seen.Get(id); id != "" && done {
		g.logger.Debug("Dropping redelivered directive", zap.String("message_id", id))
		return
	}

	fn, ok := g.handlers[d.Key()]
	if !ok {
		g.logger.Warn("No handler for directive", zap.String("directive", d.Key()))
		return
	}

	g.logger.Debug("Dispatching directive",
		zap.String("directive", d.Key()),
		zap.String("message_id", d.Header.MessageID))
	if err := fn(ctx, d); err != nil {
		g.logger.Error("Directive handler failed",
			zap.String("directive", d.Key()),
			zap.Error(err))
		return
	}

	// Only handled directives count as seen, so a rejected one can be redelivered
	if id != "" {
		g.seen.Set(id, struct{}{}, cache.DefaultExpiration)
	}
}

// SendEvent publishes an event to the event topic.
func (g *Gadget) SendEvent(ctx context.Context, namespace, name string, payload any) error {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	body, err := json.Marshal(Event{
		Header: Header{
			Namespace: namespace,
			Name:      name,
			MessageID: uuid.NewString(),
		},
		Endpoint: Endpoint{EndpointID: g.cfg.EndpointID},
		Payload:  raw,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	return conn.Send(ctx, g.cfg.EventTopic, "application/json", body)
}
