package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/sebas/amilive/internal/config"
	"github.com/sebas/amilive/internal/event"
	"github.com/sebas/amilive/internal/logger"
)

const rule = "======================================================================"

type bannerLine struct {
	label string
	value string
}

// bannerLines describes the effective configuration. Credentials never
// appear: the manager secret is omitted and URL passwords are masked.
func bannerLines(cfg *config.Config) []bannerLine {
	lines := []bannerLine{
		{"Manager", cfg.AMIUsername + "@" + cfg.AMIAddr},
		{"Queue capacity", strconv.Itoa(cfg.QueueCapacity)},
		{"Hangup grace", cfg.HangupGrace.String()},
		{"HTTP API", orDisabled(cfg.HTTPAddr)},
		{"gRPC health", orDisabled(cfg.GRPCAddr)},
		{"NATS export", orDisabled(redactURL(cfg.NATSURL))},
	}
	if cfg.NATSURL != "" {
		kinds := "all"
		if len(cfg.ExportKinds) > 0 {
			kinds = strings.Join(lo.Map(cfg.ExportKinds, func(k event.Kind, _ int) string { return string(k) }), ",")
		}
		lines = append(lines,
			bannerLine{"Export subject", cfg.SubjectPrefix + ".<kind>"},
			bannerLine{"Export kinds", kinds},
			bannerLine{"Export encoding", cfg.ExportEncoding},
		)
	}
	return append(lines, bannerLine{"Log level", logger.GetLevel()})
}

// printBanner writes the startup banner with labels aligned.
func printBanner(w io.Writer, cfg *config.Config) {
	lines := bannerLines(cfg)
	width := 0
	for _, l := range lines {
		width = max(width, len(l.label))
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "AMILIVE")
	for _, l := range lines {
		fmt.Fprintf(w, "  %-*s : %s\n", width, l.label, l.value)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ready.")
	fmt.Fprintln(w, rule)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func orDisabled(v string) string {
	if v == "" {
		return "disabled"
	}
	return v
}
