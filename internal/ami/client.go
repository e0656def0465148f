package ami

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultReconnectDelay is the pause between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// Client keeps a manager session open, reconnecting after failures. It
// satisfies the same SendAction contract as Conn; actions sent while
// disconnected fail with ErrConnClosed.
type Client struct {
	cfg     Config
	delay   time.Duration
	onEvent EventHandler
	log     *slog.Logger

	conn     atomic.Pointer[Conn]
	attempts atomic.Int64
}

// NewClient creates a client. Call Run to start connecting.
func NewClient(cfg Config, reconnectDelay time.Duration, onEvent EventHandler, log *slog.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, delay: reconnectDelay, onEvent: onEvent, log: log}
}

// Run connects and reconnects until ctx is done. A rejected login ends Run
// since retrying the same credentials cannot succeed.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.attempts.Add(1)
		conn, err := Dial(ctx, c.cfg, c.onEvent, c.log)
		switch {
		case err == nil:
			c.conn.Store(conn)
			c.wait(ctx, conn)
			c.conn.Store(nil)
		case errors.Is(err, ErrLoginFailed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Warn("[AMI] Connection attempt failed", "addr", c.cfg.Addr, "error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}
	}
}

func (c *Client) wait(ctx context.Context, conn *Conn) {
	select {
	case <-ctx.Done():
		_ = conn.Close()
	case <-conn.Done():
		c.log.Warn("[AMI] Disconnected, reconnecting", "addr", c.cfg.Addr, "error", conn.Err(), "delay", c.delay)
	}
}

// SendAction sends on the current session.
func (c *Client) SendAction(ctx context.Context, a *Action) (*Response, error) {
	conn := c.conn.Load()
	if conn == nil {
		return nil, ErrConnClosed
	}
	return conn.SendAction(ctx, a)
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool {
	return c.conn.Load() != nil
}

// Attempts returns how many connection attempts have been made.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}
