package dispatch

import (
	"time"

	"github.com/sebas/amilive/internal/event"
)

// Recorder receives queue and fan-out measurements. Implementations must be
// safe for concurrent use and must not block.
type Recorder interface {
	EventSubmitted(kind event.Kind)
	EventFiltered()
	EventDropped(kind event.Kind)
	EventDispatched(kind event.Kind, age, elapsed time.Duration)
	DispatchTimedOut(kind event.Kind)
	ListenerFailed(listener string)
	ListenerSlow(listener string)
	QueueDepth(depth int)
}

type nopRecorder struct{}

func (nopRecorder) EventSubmitted(event.Kind) {}
func (nopRecorder) EventFiltered() {}
func (nopRecorder) EventDropped(event.Kind) {}
func (nopRecorder) EventDispatched(event.Kind, time.Duration, time.Duration) {}
func (nopRecorder) DispatchTimedOut(event.Kind) {}
func (nopRecorder) ListenerFailed(string) {}
func (nopRecorder) ListenerSlow(string) {}
func (nopRecorder) QueueDepth(int) {}

// Stats is a point-in-time view of queue counters.
type Stats struct {
	Capacity       int   `json:"capacity"`
	Depth          int   `json:"depth"`
	Listeners      int   `json:"listeners"`
	Submitted      int64 `json:"submitted"`
	Filtered       int64 `json:"filtered"`
	Dropped        int64 `json:"dropped"`
	Dispatched     int64 `json:"dispatched"`
	TimedOut       int64 `json:"timed_out"`
	ListenerErrors int64 `json:"listener_errors"`
	Running        bool  `json:"running"`
}
