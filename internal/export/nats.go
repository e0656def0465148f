package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	// URL is one or more comma-separated server URLs.
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// Auth, first match wins: creds file, token, user/password.
	CredsFile string
	Token     string
	User      string
	Password  string
}

// DefaultNATSConfig returns defaults for a local server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		SubjectPrefix:  DefaultSubjectPrefix,
		ConnectTimeout: 5 * time.Second,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
	}
}

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes envelopes to core NATS subjects. The envelope id
// is sent in the Nats-Msg-Id header so a JetStream stream bound to the
// subjects deduplicates redeliveries.
type NATSPublisher struct {
	conn    natsConn
	prefix  string
	encoder Encoder
	logger  *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(cfg NATSConfig, enc Encoder, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("amilive-events"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[Export] NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[Export] NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	switch {
	case cfg.CredsFile != "":
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.User != "":
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("[Export] NATS publisher initialized", "url", cfg.URL, "prefix", cfg.SubjectPrefix)
	return newNATSPublisher(conn, cfg.SubjectPrefix, enc, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, enc Encoder, logger *slog.Logger) *NATSPublisher {
	if enc == nil {
		enc = JSONEncoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, encoder: enc, logger: logger}
}

func (p *NATSPublisher) Publish(_ context.Context, e Envelope) error {
	data, err := p.encoder.Encode(e)
	if err != nil {
		p.failed.Add(1)
		return err
	}

	msg := nats.NewMsg(e.Subject(p.prefix))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, e.ID)
	msg.Header.Set("Content-Type", p.encoder.ContentType())

	if err := p.conn.PublishMsg(msg); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}
	p.published.Add(1)
	return nil
}

func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("[Export] Flush failed during close", "error", err)
	}
	p.conn.Close()
	return nil
}

// Stats returns publish counters.
func (p *NATSPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}
