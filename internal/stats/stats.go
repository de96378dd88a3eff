package stats

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Retention is how many recent samples each time series keeps for
// computing rolling aggregates.
const Retention = 100

// Snapshot is the public statistics document. It carries cumulative
// counters and derived rolling aggregates only; the raw sample series
// are never exposed here.
type Snapshot struct {
	// Creation time of the stats file (ISO-8601 UTC).
	// example: 2025-01-01T00:00:00Z
	CreatedAt string `json:"created_at" yaml:"created_at"`
	// Time of the most recent mutation (ISO-8601 UTC).
	// example: 2025-01-02T12:34:56Z
	LastUpdated string `json:"last_updated" yaml:"last_updated"`
	// Number of frontend connect events recorded.
	// example: 42
	UniqueSessions int `json:"unique_sessions" yaml:"unique_sessions"`
	// Compilations started (may transiently exceed success+fail).
	// example: 120
	TotalCompilations int `json:"total_compilations" yaml:"total_compilations"`
	// Compilations that produced a blueprint.
	// example: 100
	SuccessfulCompilations int `json:"successful_compilations" yaml:"successful_compilations"`
	// Compilations that failed or raised.
	// example: 20
	FailedCompilations int `json:"failed_compilations" yaml:"failed_compilations"`

	AvgCompilationTimeSeconds    float64 `json:"avg_compilation_time_seconds" yaml:"avg_compilation_time_seconds"`
	MedianCompilationTimeSeconds float64 `json:"median_compilation_time_seconds" yaml:"median_compilation_time_seconds"`
	MinCompilationTimeSeconds    float64 `json:"min_compilation_time_seconds" yaml:"min_compilation_time_seconds"`
	MaxCompilationTimeSeconds    float64 `json:"max_compilation_time_seconds" yaml:"max_compilation_time_seconds"`

	// Queue metrics.
	CurrentQueueLength  int `json:"current_queue_length" yaml:"current_queue_length"`
	MaxQueueLengthSeen  int `json:"max_queue_length_seen" yaml:"max_queue_length_seen"`
	TotalQueuedRequests int `json:"total_queued_requests" yaml:"total_queued_requests"`

	AvgQueueWaitSeconds    float64 `json:"avg_queue_wait_seconds" yaml:"avg_queue_wait_seconds"`
	MedianQueueWaitSeconds float64 `json:"median_queue_wait_seconds" yaml:"median_queue_wait_seconds"`
	MinQueueWaitSeconds    float64 `json:"min_queue_wait_seconds" yaml:"min_queue_wait_seconds"`
	MaxQueueWaitSeconds    float64 `json:"max_queue_wait_seconds" yaml:"max_queue_wait_seconds"`

	// Total time (queue wait + compilation).
	AvgTotalRequestSeconds    float64 `json:"avg_total_request_seconds" yaml:"avg_total_request_seconds"`
	MedianTotalRequestSeconds float64 `json:"median_total_request_seconds" yaml:"median_total_request_seconds"`
	MinTotalRequestSeconds    float64 `json:"min_total_request_seconds" yaml:"min_total_request_seconds"`
	MaxTotalRequestSeconds    float64 `json:"max_total_request_seconds" yaml:"max_total_request_seconds"`
}

// document is the persisted form: the snapshot plus the retained raw
// series the aggregates are derived from.
type document struct {
	Snapshot          `yaml:",inline"`
	CompilationTimes  []float64 `yaml:"compilation_times"`
	QueueWaitTimes    []float64 `yaml:"queue_wait_times"`
	TotalRequestTimes []float64 `yaml:"total_request_times"`
}

// Store tracks rolling service statistics and rewrites the full
// document to disk after every mutation. All mutators are serialized
// under one mutex. Persistence is best effort: a failed write is
// logged and swallowed, never surfaced to the caller.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
	doc  document
}

// Open loads the document at path, or starts from a zero baseline when
// the file is missing or unreadable. Partial documents get missing
// fields as zero values. The parent directory is created if needed.
func Open(path string, log zerolog.Logger) *Store {
	s := &Store{path: path, log: log}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("stats dir create failed")
		}
	}
	now := isoNow()
	s.doc.CreatedAt = now
	s.doc.LastUpdated = now
	if b, err := os.ReadFile(path); err == nil {
		var loaded document
		if err := yaml.Unmarshal(b, &loaded); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("stats file unreadable, starting fresh")
		} else {
			if loaded.CreatedAt == "" {
				loaded.CreatedAt = now
			}
			if loaded.LastUpdated == "" {
				loaded.LastUpdated = now
			}
			s.doc = loaded
		}
	}
	return s
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// RecordSession counts a frontend connect.
func (s *Store) RecordSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.UniqueSessions++
	s.persistLocked()
}

// RecordCompilationStart counts a compilation before its outcome is
// known. Exactly one of RecordCompilationSuccess or
// RecordCompilationFailure must follow.
func (s *Store) RecordCompilationStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TotalCompilations++
	s.persistLocked()
}

// RecordCompilationSuccess records a successful compilation and its
// duration.
func (s *Store) RecordCompilationSuccess(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SuccessfulCompilations++
	s.appendCompilationTimeLocked(d)
	s.persistLocked()
}

// RecordCompilationFailure records a failed compilation and its
// duration.
func (s *Store) RecordCompilationFailure(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.FailedCompilations++
	s.appendCompilationTimeLocked(d)
	s.persistLocked()
}

// RecordQueueWait records the time a granted request spent waiting for
// the compilation slot.
func (s *Store) RecordQueueWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TotalQueuedRequests++
	s.doc.QueueWaitTimes = appendSample(s.doc.QueueWaitTimes, d)
	agg := computeAggregates(s.doc.QueueWaitTimes)
	s.doc.AvgQueueWaitSeconds = agg.avg
	s.doc.MedianQueueWaitSeconds = agg.median
	s.doc.MinQueueWaitSeconds = agg.min
	s.doc.MaxQueueWaitSeconds = agg.max
	s.persistLocked()
}

// RecordTotalRequestTime records the full lifetime of a request, from
// enqueue to finalization.
func (s *Store) RecordTotalRequestTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TotalRequestTimes = appendSample(s.doc.TotalRequestTimes, d)
	agg := computeAggregates(s.doc.TotalRequestTimes)
	s.doc.AvgTotalRequestSeconds = agg.avg
	s.doc.MedianTotalRequestSeconds = agg.median
	s.doc.MinTotalRequestSeconds = agg.min
	s.doc.MaxTotalRequestSeconds = agg.max
	s.persistLocked()
}

// SetQueueLength updates the observed queue depth and its high-water
// mark.
func (s *Store) SetQueueLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.CurrentQueueLength = n
	if n > s.doc.MaxQueueLengthSeen {
		s.doc.MaxQueueLengthSeen = n
	}
	s.persistLocked()
}

// Snapshot returns the public statistics document. Pure read; raw
// series are excluded.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Snapshot
}

func (s *Store) appendCompilationTimeLocked(d time.Duration) {
	s.doc.CompilationTimes = appendSample(s.doc.CompilationTimes, d)
	agg := computeAggregates(s.doc.CompilationTimes)
	s.doc.AvgCompilationTimeSeconds = agg.avg
	s.doc.MedianCompilationTimeSeconds = agg.median
	s.doc.MinCompilationTimeSeconds = agg.min
	s.doc.MaxCompilationTimeSeconds = agg.max
}

// persistLocked rewrites the whole document. Write-then-rename so an
// external reader never sees a half-written file.
func (s *Store) persistLocked() {
	s.doc.LastUpdated = isoNow()
	b, err := yaml.Marshal(&s.doc)
	if err != nil {
		s.log.Warn().Err(err).Msg("stats marshal failed")
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.log.Warn().Err(err).Str("path", tmp).Msg("stats write failed")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("stats rename failed")
	}
}

// appendSample appends a rounded duration sample, evicting the oldest
// entries beyond the retention window.
func appendSample(series []float64, d time.Duration) []float64 {
	series = append(series, round3(d.Seconds()))
	if len(series) > Retention {
		series = series[len(series)-Retention:]
	}
	return series
}

type aggregates struct {
	avg, median, min, max float64
}

// computeAggregates derives mean/median/min/max over the retained
// window. An empty series yields all zeros.
func computeAggregates(series []float64) aggregates {
	if len(series) == 0 {
		return aggregates{}
	}
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}
	return aggregates{
		avg:    round3(sum / float64(n)),
		median: round3(median),
		min:    round3(sorted[0]),
		max:    round3(sorted[n-1]),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
