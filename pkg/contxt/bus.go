package contxt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Channel methods after Close.
var ErrChannelClosed = errors.New("contxt: bus channel closed")

// Bus opens streaming channels to the message bus. One channel is kept per
// organization and reused until it closes.
type Bus struct {
	client *RequestClient
	dialer *websocket.Dialer
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*Channel
}

func NewBus(client *RequestClient, logger *slog.Logger) *Bus {
	return &Bus{
		client: client,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger:   logger,
		channels: make(map[string]*Channel),
	}
}

// Connect returns the open channel for organizationID, dialing one if none
// is cached.
func (b *Bus) Connect(ctx context.Context, organizationID string) (*Channel, error) {
	if organizationID == "" {
		return nil, &ValidationError{Field: "organization id"}
	}

	if ch, ok := b.cached(organizationID); ok {
		return ch, nil
	}

	if b.client == nil {
		return nil, &ConfigError{Message: "no bus audience is configured", Audiences: []string{AudienceBus}}
	}
	wsURL := b.client.Audience().WebSocket
	if wsURL == "" {
		return nil, &ConfigError{
			Message:   "the bus audience has no websocket url",
			Audiences: []string{b.client.Audience().Name},
		}
	}
	target := strings.TrimSuffix(wsURL, "/") + "/organizations/" + url.PathEscape(organizationID) + "/stream"

	header := http.Header{}
	token, err := b.client.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	// b.mu is not held while dialing. A racing Connect that cached a channel
	// first wins.
	conn, resp, err := b.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return nil, fmt.Errorf("failed to connect to message bus: %w", err)
	}

	b.mu.Lock()
	if existing, ok := b.channels[organizationID]; ok {
		b.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	ch := &Channel{
		OrganizationID: organizationID,
		conn:           conn,
		bus:            b,
		done:           make(chan struct{}),
	}
	b.channels[organizationID] = ch
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "connected to message bus", "organization_id", organizationID)
	return ch, nil
}

func (b *Bus) cached(organizationID string) (*Channel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[organizationID]
	return ch, ok
}

func (b *Bus) evict(ch *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channels[ch.OrganizationID] == ch {
		delete(b.channels, ch.OrganizationID)
	}
}

// Close closes every cached channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	channels := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		errs = append(errs, ch.Close())
	}
	return errors.Join(errs...)
}

// Channel is an open message bus connection for one organization. Send and
// Receive may be used from different goroutines.
type Channel struct {
	OrganizationID string

	conn *websocket.Conn
	bus  *Bus

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Send writes v as one JSON message.
func (c *Channel) Send(ctx context.Context, v any) error {
	if c.closed() {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.shutdown()
		return fmt.Errorf("failed to send bus message: %w", err)
	}
	return nil
}

// Receive reads the next JSON message into v. Any read error closes the
// channel and drops it from the bus cache.
func (c *Channel) Receive(ctx context.Context, v any) error {
	if c.closed() {
		return ErrChannelClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	if err := c.conn.ReadJSON(v); err != nil {
		c.shutdown()
		return fmt.Errorf("failed to receive bus message: %w", err)
	}
	return nil
}

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and releases the connection.
func (c *Channel) Close() error {
	if c.closed() {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	return c.shutdown()
}

func (c *Channel) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.bus.evict(c)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
