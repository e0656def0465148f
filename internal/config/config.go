package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"

	"github.com/sebas/amilive/internal/event"
)

// Config holds the amilive daemon configuration
type Config struct {
	// Manager connection
	AMIAddr        string        `env:"AMILIVE_AMI_ADDR" validate:"required,hostname_port"`
	AMIUsername    string        `env:"AMILIVE_AMI_USERNAME" validate:"required"`
	AMISecret      string        `env:"AMILIVE_AMI_SECRET"`
	DialTimeout    time.Duration `env:"AMILIVE_DIAL_TIMEOUT" validate:"gt=0"`
	ReconnectDelay time.Duration `env:"AMILIVE_RECONNECT_DELAY" validate:"gt=0"`

	// Ingestion queue
	QueueCapacity   int           `env:"AMILIVE_QUEUE_CAPACITY" validate:"gt=0"`
	PollInterval    time.Duration `env:"AMILIVE_POLL_INTERVAL" validate:"gt=0"`
	DispatchTimeout time.Duration `env:"AMILIVE_DISPATCH_TIMEOUT" validate:"gt=0"`
	SlowListener    time.Duration `env:"AMILIVE_SLOW_LISTENER" validate:"gt=0"`
	SlowEvent       time.Duration `env:"AMILIVE_SLOW_EVENT" validate:"gt=0"`

	// Channel retention
	HangupGrace   time.Duration `env:"AMILIVE_HANGUP_GRACE" validate:"gt=0"`
	SweepInterval time.Duration `env:"AMILIVE_SWEEP_INTERVAL" validate:"gt=0"`
	ArchiveLimit  int           `env:"AMILIVE_ARCHIVE_LIMIT" validate:"gte=0"`

	// Outer surfaces; an empty address disables the listener
	HTTPAddr string `env:"AMILIVE_HTTP_ADDR" validate:"omitempty,hostname_port"`
	GRPCAddr string `env:"AMILIVE_GRPC_ADDR" validate:"omitempty,hostname_port"`

	// Event export; an empty NATS URL disables it
	NATSURL        string `env:"AMILIVE_NATS_URL" validate:"omitempty,url"`
	NATSCredsFile  string `env:"AMILIVE_NATS_CREDS"`
	SubjectPrefix  string `env:"AMILIVE_SUBJECT_PREFIX" validate:"required"`
	ExportEncoding string `env:"AMILIVE_EXPORT_ENCODING" validate:"oneof=json proto"`
	// ExportKinds limits export to these kinds; empty exports every kind.
	ExportKinds []event.Kind

	LogLevel  string `env:"AMILIVE_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"AMILIVE_LOG_FORMAT" validate:"oneof=text json"`
}

// Load parses flags from args, overrides them with environment variables
// found in environ, then validates the result. It returns pflag.ErrHelp
// when help was requested.
func Load(args, environ []string) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("amilive", pflag.ContinueOnError)
	fs.StringVar(&cfg.AMIAddr, "ami-addr", "127.0.0.1:5038", "Manager interface address (host:port)")
	fs.StringVar(&cfg.AMIUsername, "ami-username", "admin", "Manager login username")
	fs.StringVar(&cfg.AMISecret, "ami-secret", "", "Manager login secret")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", 10*time.Second, "Manager dial timeout")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", 5*time.Second, "Pause between manager connection attempts")

	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", 1000, "Ingestion queue capacity")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 2*time.Second, "Idle wake-up interval of the dispatch worker")
	fs.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", 2*time.Second, "Maximum wait for listeners per event")
	fs.DurationVar(&cfg.SlowListener, "slow-listener", 500*time.Millisecond, "Listener duration logged as slow")
	fs.DurationVar(&cfg.SlowEvent, "slow-event", 100*time.Millisecond, "Event age or dispatch duration logged as slow")

	fs.DurationVar(&cfg.HangupGrace, "hangup-grace", 15*time.Second, "How long hung-up channels stay addressable")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", time.Second, "Retention sweep interval")
	fs.IntVar(&cfg.ArchiveLimit, "archive-limit", 10000, "Evicted channel snapshots kept in memory (0 = unbounded)")

	fs.StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "HTTP API listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", ":9090", "gRPC health listen address")

	fs.StringVar(&cfg.NATSURL, "nats-url", "", "NATS server URL for event export")
	fs.StringVar(&cfg.NATSCredsFile, "nats-creds", "", "NATS credentials file")
	fs.StringVar(&cfg.SubjectPrefix, "subject-prefix", "amilive.events", "Subject prefix for exported events")
	fs.StringVar(&cfg.ExportEncoding, "export-encoding", "json", "Exported event encoding (json, proto)")
	var kinds []string
	fs.StringSliceVar(&kinds, "export-kinds", nil, "Event kinds to export, comma-separated (default all)")

	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "logformat", "text", "Log format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for _, name := range kinds {
		k, ok := event.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("invalid configuration: unknown export kind %q", name)
		}
		cfg.ExportKinds = append(cfg.ExportKinds, k)
	}

	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := env.Unmarshal(es, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
