package queue

import (
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity. All counters are atomic.
type Statistics struct {
	pushes    atomic.Int64
	pops      atomic.Int64
	aboveMark atomic.Int64
	maxLen    atomic.Int64
	startTime time.Time
}

func newStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) push(length int, aboveMark bool) {
	s.pushes.Add(1)
	if aboveMark {
		s.aboveMark.Add(1)
	}
	for {
		cur := s.maxLen.Load()
		if int64(length) <= cur || s.maxLen.CompareAndSwap(cur, int64(length)) {
			return
		}
	}
}

func (s *Statistics) pop() {
	s.pops.Add(1)
}

// Pushes returns the number of items pushed.
func (s *Statistics) Pushes() int64 { return s.pushes.Load() }

// Pops returns the number of items popped.
func (s *Statistics) Pops() int64 { return s.pops.Load() }

// AboveMark returns how many pushes left the queue at or above its high-water mark.
func (s *Statistics) AboveMark() int64 { return s.aboveMark.Load() }

// MaxLen returns the largest length the queue has reached.
func (s *Statistics) MaxLen() int64 { return s.maxLen.Load() }

// Throughput returns pushes per second since creation.
func (s *Statistics) Throughput() float64 {
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Pushes()) / elapsed
}

// Summary is a point-in-time copy of the statistics.
type Summary struct {
	Pushes     int64         `json:"pushes"`
	Pops       int64         `json:"pops"`
	AboveMark  int64         `json:"above_mark"`
	MaxLen     int64         `json:"max_len"`
	Throughput float64       `json:"throughput"`
	Uptime     time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() Summary {
	return Summary{
		Pushes:     s.Pushes(),
		Pops:       s.Pops(),
		AboveMark:  s.AboveMark(),
		MaxLen:     s.MaxLen(),
		Throughput: s.Throughput(),
		Uptime:     time.Since(s.startTime),
	}
}
