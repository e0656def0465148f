// Package types defines the JSON shapes served by the amilive HTTP API.
package types

import (
	"time"

	"github.com/sebas/amilive/internal/dispatch"
)

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime"`
	Ingestion bool   `json:"ingestion"`
}

// StatsResponse is the response from /api/v1/stats
type StatsResponse struct {
	ActiveChannels int            `json:"active_channels"`
	HungupChannels int            `json:"hungup_channels"`
	Queue          dispatch.Stats `json:"queue"`
}

// Channel is one entry of /api/v1/channels
type Channel struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	State          string    `json:"state"`
	CallerIDName   string    `json:"caller_id_name,omitempty"`
	CallerIDNumber string    `json:"caller_id_number,omitempty"`
	LinkedChannel  string    `json:"linked_channel,omitempty"`
	Created        time.Time `json:"created"`
	Duration       int       `json:"duration"`
}

// ChannelList is the response from /api/v1/channels
type ChannelList struct {
	Channels []Channel `json:"channels"`
	Count    int       `json:"count"`
}

// Error is returned with non-2xx responses.
type Error struct {
	Error string `json:"error"`
}
