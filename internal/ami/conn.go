package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrConnClosed is returned for actions sent on, or pending when, the
// connection closes.
var ErrConnClosed = errors.New("manager connection closed")

// ErrLoginFailed is returned when the server rejects the credentials.
var ErrLoginFailed = errors.New("manager login failed")

// EventHandler receives events in the order they were read off the wire. It
// is called from the read loop and must not block.
type EventHandler func(msg *Message)

// Config holds connection parameters.
type Config struct {
	Addr        string
	Username    string
	Secret      string
	DialTimeout time.Duration
}

// Conn is a single manager session. SendAction is safe for concurrent use.
type Conn struct {
	nc      net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *Response

	onEvent EventHandler
	log     *slog.Logger
	banner  string

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects, reads the protocol banner and logs in.
func Dial(ctx context.Context, cfg Config, onEvent EventHandler, log *slog.Logger) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial manager at %s: %w", cfg.Addr, err)
	}

	c, err := NewConn(nc, onEvent, log)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}

	if err := c.Login(ctx, cfg.Username, cfg.Secret); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewConn wraps an established stream, reads the banner line and starts the
// read loop.
func NewConn(nc net.Conn, onEvent EventHandler, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	if onEvent == nil {
		onEvent = func(*Message) {}
	}

	reader := bufio.NewReader(nc)
	banner, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read manager banner: %w", err)
	}

	c := &Conn{
		nc:      nc,
		reader:  reader,
		pending: make(map[string]chan *Response),
		onEvent: onEvent,
		log:     log,
		banner:  strings.TrimSpace(banner),
		done:    make(chan struct{}),
	}

	go c.readLoop()

	log.Info("[AMI] Connected", "remote", nc.RemoteAddr().String(), "banner", c.banner)
	return c, nil
}

// Banner returns the protocol identification line sent by the server.
func (c *Conn) Banner() string {
	return c.banner
}

// Login authenticates the session.
func (c *Conn) Login(ctx context.Context, username, secret string) error {
	resp, err := c.SendAction(ctx, Login(username, secret))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrLoginFailed, resp.Text())
	}
	c.log.Info("[AMI] Logged in", "username", username)
	return nil
}

// SendAction writes an action and waits for its response.
func (c *Conn) SendAction(ctx context.Context, a *Action) (*Response, error) {
	ch := make(chan *Response, 1)

	c.pendingMu.Lock()
	select {
	case <-c.done:
		c.pendingMu.Unlock()
		return nil, ErrConnClosed
	default:
	}
	c.pending[a.ActionID()] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, a.ActionID())
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	_, err := c.nc.Write(a.Encode())
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", a.Name(), err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close logs off best-effort and closes the stream.
func (c *Conn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.writeMu.Lock()
	_ = c.nc.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = c.nc.Write(Logoff().Encode())
	c.writeMu.Unlock()

	return c.shutdown(nil)
}

func (c *Conn) shutdown(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.pendingMu.Lock()
		close(c.done)
		c.pendingMu.Unlock()

		err = c.nc.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	for {
		msg, err := ReadMessage(c.reader, time.Now)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("[AMI] Read loop ended", "error", err)
			}
			_ = c.shutdown(err)
			return
		}

		switch {
		case msg.IsResponse():
			c.deliverResponse(NewResponse(msg))
		case msg.IsEvent():
			c.onEvent(msg)
		default:
			c.log.Debug("[AMI] Ignoring unrecognized block", "block", msg.String())
		}
	}
}

func (c *Conn) deliverResponse(resp *Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ActionID()]
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("[AMI] Response for unknown action", "action_id", resp.ActionID())
		return
	}
	select {
	case ch <- resp:
	default:
	}
}
