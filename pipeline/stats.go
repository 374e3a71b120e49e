package pipeline

import (
	"maps"
	"time"

	"github.com/usc-rasc/kinect-bridge2/pkg/guard"
)

// Stats is the writer's view of the output stream.
type Stats struct {
	Session  string           `json:"session"`
	Started  time.Time        `json:"started"`
	Messages int64            `json:"messages"`
	Bytes    int64            `json:"bytes"`
	Dropped  int64            `json:"dropped"`
	PerType  map[string]int64 `json:"per_type"`
}

// MBytes returns the framed output size in megabytes.
func (s Stats) MBytes() float64 {
	return float64(s.Bytes) / (1 << 20)
}

func (s Stats) clone() Stats {
	s.PerType = maps.Clone(s.PerType)
	if s.PerType == nil {
		s.PerType = map[string]int64{}
	}
	return s
}

// writerStats is owned by the writer; everyone else reads snapshots.
type writerStats struct {
	g *guard.Guard[Stats]
}

func newWriterStats(session string, started time.Time) *writerStats {
	return &writerStats{g: guard.New(Stats{
		Session: session,
		Started: started,
		PerType: make(map[string]int64),
	})}
}

func (w *writerStats) written(payloadType string, bytes int) {
	_ = w.g.With(guard.NotifyNone, func(h *guard.Handle[Stats]) error {
		s := h.GetExclusive()
		s.Messages++
		s.Bytes += int64(bytes)
		s.PerType[payloadType]++
		return nil
	})
}

func (w *writerStats) dropped(n int64) {
	_ = w.g.With(guard.NotifyNone, func(h *guard.Handle[Stats]) error {
		h.GetExclusive().Dropped += n
		return nil
	})
}

func (w *writerStats) snapshot() Stats {
	h := w.g.Handle(guard.NotifyNone)
	defer h.Release()
	return h.Get().clone()
}
