package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// StatusLine formats the periodic throughput report.
func StatusLine(st Stats, rate float64) string {
	return fmt.Sprintf("Output MBytes: %.2f (%.2f MB/sec)", st.MBytes(), rate)
}

func typeCounts(st Stats) []any {
	names := make([]string, 0, len(st.PerType))
	for name := range st.PerType {
		names = append(names, name)
	}
	slices.Sort(names)

	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.Int64(name, st.PerType[name]))
	}
	return attrs
}

func (p *Pipeline) statusLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.StatusInterval)
	defer ticker.Stop()

	last := p.stats.snapshot()
	lastTime := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st := p.stats.snapshot()
			var rate float64
			if elapsed := now.Sub(lastTime).Seconds(); elapsed > 0 {
				rate = float64(st.Bytes-last.Bytes) / (1 << 20) / elapsed
			}
			p.logger.Info(StatusLine(st, rate),
				slog.Group("messages", typeCounts(st)...),
				"dropped", st.Dropped)
			last, lastTime = st, now
		}
	}
}
