package export

import (
	"context"
	"slices"

	"github.com/sebas/amilive/internal/event"
)

// Exporter is a dispatch listener that publishes every event it receives.
type Exporter struct {
	kinds []event.Kind
	pub   Publisher
}

// NewExporter publishes events of the given kinds to pub. No kinds means
// all of them.
func NewExporter(pub Publisher, kinds []event.Kind) *Exporter {
	if len(kinds) == 0 {
		kinds = event.AllKinds
	}
	return &Exporter{kinds: slices.Clone(kinds), pub: pub}
}

func (x *Exporter) Name() string { return "exporter" }

func (x *Exporter) RequiredKinds() []event.Kind { return slices.Clone(x.kinds) }

// OnEvent publishes evt. Publish failures are returned so dispatch logs
// them against this listener.
func (x *Exporter) OnEvent(ctx context.Context, evt event.Event) error {
	return x.pub.Publish(ctx, NewEnvelope(evt))
}
