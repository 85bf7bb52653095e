package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultShards = 16

	// minTail is the smallest per-shard tail kept in streaming mode.
	minTail = 256
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// RetentionCap bounds how many raw outcomes are kept.
	//   0: keep every outcome (exact percentiles)
	//   n > 0: keep up to n, then switch to streaming aggregates
	//   n < 0: stream from the first outcome
	RetentionCap int

	// Shards is the number of independently locked stores (default: 16).
	Shards int
}

// Recorder is an append-only, concurrency-safe store of iteration outcomes.
//
// Writers are spread over shards keyed by VU ID so that many VUs recording
// at once rarely contend on the same lock. Totals are also kept in atomic
// counters for cheap live progress reads.
//
// When the retention cap is exceeded the recorder switches to streaming
// mode. Each shard then keeps running aggregates for outcomes that ended at
// or before its fold point, plus a short tail of raw outcomes that ended
// later. A snapshot folds the tail up to its cutoff, so cutoffs are honored
// exactly as long as they are not older than a shard's fold point. Nothing
// is dropped; only percentile precision changes.
type Recorder struct {
	shards    []*shard
	cap       int
	tail      int
	retained  atomic.Int64
	streaming atomic.Bool

	total    atomic.Int64
	failures atomic.Int64
}

type shard struct {
	mu sync.Mutex

	// outcomes holds every retained outcome before streaming starts and
	// the unfolded tail after.
	outcomes []Outcome

	running *Running
	// folded is the latest end time covered by running.
	folded time.Time
}

// foldUpTo moves outcomes ending at or before cutoff into the running
// aggregates; a zero cutoff folds all of them. Caller holds mu.
func (s *shard) foldUpTo(cutoff time.Time) {
	kept := s.outcomes[:0]
	for _, o := range s.outcomes {
		if !cutoff.IsZero() && o.End.After(cutoff) {
			kept = append(kept, o)
			continue
		}
		s.running.Add(o)
		if o.End.After(s.folded) {
			s.folded = o.End
		}
	}
	clear(s.outcomes[len(kept):])
	s.outcomes = kept
	if cutoff.After(s.folded) {
		s.folded = cutoff
	}
}

// add records o in streaming mode. Caller holds mu.
func (s *shard) add(o Outcome, tail int) {
	if !o.End.After(s.folded) {
		s.running.Add(o)
		return
	}
	s.outcomes = append(s.outcomes, o)
	if len(s.outcomes) > tail {
		s.foldUpTo(time.Time{})
	}
}

// NewRecorder creates a recorder.
func NewRecorder(config RecorderConfig) *Recorder {
	n := config.Shards
	if n <= 0 {
		n = defaultShards
	}
	r := &Recorder{
		shards: make([]*shard, n),
		cap:    config.RetentionCap,
		tail:   max(config.RetentionCap/n, minTail),
	}
	for i := range r.shards {
		r.shards[i] = &shard{running: NewRunning()}
	}
	if config.RetentionCap < 0 {
		r.streaming.Store(true)
	}
	return r
}

// Record appends an outcome. Safe for any number of concurrent callers.
func (r *Recorder) Record(o Outcome) {
	sh := r.shards[uint(o.VU)%uint(len(r.shards))]

	sh.mu.Lock()
	if r.streaming.Load() {
		sh.add(o, r.tail)
	} else {
		sh.outcomes = append(sh.outcomes, o)
		if r.cap > 0 && r.retained.Add(1) > int64(r.cap) {
			r.streaming.Store(true)
			if len(sh.outcomes) > r.tail {
				sh.foldUpTo(time.Time{})
			}
		}
	}
	sh.mu.Unlock()

	r.total.Add(1)
	if !o.Success {
		r.failures.Add(1)
	}
}

// Counts returns the live iteration and failure totals without locking.
func (r *Recorder) Counts() (total, failures int64) {
	return r.total.Load(), r.failures.Load()
}

// Streaming reports whether the recorder has switched to running aggregates.
func (r *Recorder) Streaming() bool {
	return r.streaming.Load()
}

// SnapshotAt aggregates every outcome whose End is at or before cutoff.
// A zero cutoff includes everything recorded so far.
//
// In streaming mode the cutoff is exact unless it is older than a previous
// cutoff or than outcomes a shard folded to bound its tail; those outcomes
// are counted anyway.
//
// Calling SnapshotAt twice with the same cutoff and no Record in between
// yields identical aggregates.
func (r *Recorder) SnapshotAt(cutoff time.Time) *Snapshot {
	for _, sh := range r.shards {
		sh.mu.Lock()
	}

	if r.streaming.Load() {
		merged := NewRunning()
		for _, sh := range r.shards {
			sh.foldUpTo(cutoff)
			merged.Merge(sh.running)
			sh.mu.Unlock()
		}
		return AggregateRunning(merged)
	}

	var outcomes []Outcome
	for _, sh := range r.shards {
		for _, o := range sh.outcomes {
			if cutoff.IsZero() || !o.End.After(cutoff) {
				outcomes = append(outcomes, o)
			}
		}
		sh.mu.Unlock()
	}
	return Aggregate(outcomes)
}

// Snapshot aggregates everything recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	return r.SnapshotAt(time.Time{})
}
