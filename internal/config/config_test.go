package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/amilive/internal/event"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5038", cfg.AMIAddr)
	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowListener)
	assert.Equal(t, 100*time.Millisecond, cfg.SlowEvent)
	assert.Equal(t, 15*time.Second, cfg.HangupGrace)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "json", cfg.ExportEncoding)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--ami-addr", "pbx.local:5038",
		"--queue-capacity=50",
		"--hangup-grace", "30s",
		"--nats-url", "nats://127.0.0.1:4222",
		"--export-encoding", "proto",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "pbx.local:5038", cfg.AMIAddr)
	assert.Equal(t, 50, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.HangupGrace)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "proto", cfg.ExportEncoding)
}

func TestEnvironmentOverridesFlags(t *testing.T) {
	cfg, err := Load(
		[]string{"--ami-secret", "from-flag", "--loglevel", "warn"},
		[]string{
			"AMILIVE_AMI_SECRET=from-env",
			"AMILIVE_DISPATCH_TIMEOUT=3s",
			"AMILIVE_HTTP_ADDR=127.0.0.1:8081",
			"UNRELATED=1",
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.AMISecret)
	assert.Equal(t, 3*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr)
}

func TestValidation(t *testing.T) {
	tests := map[string][]string{
		"zero capacity":    {"--queue-capacity=0"},
		"bad address":      {"--ami-addr", "no-port"},
		"unknown encoding": {"--export-encoding", "xml"},
		"unknown level":    {"--loglevel", "trace"},
		"zero grace":       {"--hangup-grace", "0s"},
		"bad nats url":     {"--nats-url", "not a url"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args, nil)
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestExportKinds(t *testing.T) {
	cfg, err := Load(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.ExportKinds)

	cfg, err = Load([]string{"--export-kinds", "hangup,new_state"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []event.Kind{event.KindHangup, event.KindNewState}, cfg.ExportKinds)

	_, err = Load([]string{"--export-kinds", "hangup,bogus"}, nil)
	assert.ErrorContains(t, err, `unknown export kind "bogus"`)
}

func TestHelp(t *testing.T) {
	_, err := Load([]string{"--help"}, nil)
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"}, nil)
	assert.Error(t, err)
}
