package aggregator

import (
	"math"
	"time"

	"factod/internal/stats"
)

// Aggregate is the fleet-wide statistics document written by the
// aggregator. Counters are summed across backends, rolling averages
// are averaged, minima and maxima span the whole fleet.
type Aggregate struct {
	AggregatedAt string `yaml:"aggregated_at" json:"aggregated_at"`
	ServerCount  int    `yaml:"server_count" json:"server_count"`

	TotalCompilations      int `yaml:"total_compilations" json:"total_compilations"`
	SuccessfulCompilations int `yaml:"successful_compilations" json:"successful_compilations"`
	FailedCompilations     int `yaml:"failed_compilations" json:"failed_compilations"`
	UniqueSessions         int `yaml:"unique_sessions" json:"unique_sessions"`
	TotalQueuedRequests    int `yaml:"total_queued_requests" json:"total_queued_requests"`

	AvgCompilationTimeSeconds    float64 `yaml:"avg_compilation_time_seconds" json:"avg_compilation_time_seconds"`
	MedianCompilationTimeSeconds float64 `yaml:"median_compilation_time_seconds" json:"median_compilation_time_seconds"`
	AvgQueueWaitSeconds          float64 `yaml:"avg_queue_wait_seconds" json:"avg_queue_wait_seconds"`
	MedianQueueWaitSeconds       float64 `yaml:"median_queue_wait_seconds" json:"median_queue_wait_seconds"`
	AvgTotalRequestSeconds       float64 `yaml:"avg_total_request_seconds" json:"avg_total_request_seconds"`
	MedianTotalRequestSeconds    float64 `yaml:"median_total_request_seconds" json:"median_total_request_seconds"`

	MinCompilationTimeSeconds float64 `yaml:"min_compilation_time_seconds" json:"min_compilation_time_seconds"`
	MinQueueWaitSeconds       float64 `yaml:"min_queue_wait_seconds" json:"min_queue_wait_seconds"`
	MinTotalRequestSeconds    float64 `yaml:"min_total_request_seconds" json:"min_total_request_seconds"`

	MaxCompilationTimeSeconds float64 `yaml:"max_compilation_time_seconds" json:"max_compilation_time_seconds"`
	MaxQueueWaitSeconds       float64 `yaml:"max_queue_wait_seconds" json:"max_queue_wait_seconds"`
	MaxTotalRequestSeconds    float64 `yaml:"max_total_request_seconds" json:"max_total_request_seconds"`
	MaxQueueLengthSeen        int     `yaml:"max_queue_length_seen" json:"max_queue_length_seen"`

	// Summed load across the fleet plus the busiest single backend.
	CurrentQueueLength      int `yaml:"current_queue_length" json:"current_queue_length"`
	MaxQueueLengthPerServer int `yaml:"max_queue_length_per_server" json:"max_queue_length_per_server"`

	CreatedAt   string `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	LastUpdated string `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`

	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
}

// Merge combines per-backend snapshots into one fleet document.
// Zero-valued timing fields are treated as "no data" and skipped so an
// idle backend does not drag averages or minima to zero.
func Merge(snaps []stats.Snapshot, now time.Time) Aggregate {
	agg := Aggregate{
		AggregatedAt: now.UTC().Format(time.RFC3339),
		ServerCount:  len(snaps),
	}
	if len(snaps) == 0 {
		return agg
	}

	for _, s := range snaps {
		agg.TotalCompilations += s.TotalCompilations
		agg.SuccessfulCompilations += s.SuccessfulCompilations
		agg.FailedCompilations += s.FailedCompilations
		agg.UniqueSessions += s.UniqueSessions
		agg.TotalQueuedRequests += s.TotalQueuedRequests
		agg.CurrentQueueLength += s.CurrentQueueLength
		if s.CurrentQueueLength > agg.MaxQueueLengthPerServer {
			agg.MaxQueueLengthPerServer = s.CurrentQueueLength
		}
		if s.MaxQueueLengthSeen > agg.MaxQueueLengthSeen {
			agg.MaxQueueLengthSeen = s.MaxQueueLengthSeen
		}
		if s.CreatedAt != "" && (agg.CreatedAt == "" || s.CreatedAt < agg.CreatedAt) {
			agg.CreatedAt = s.CreatedAt
		}
		if s.LastUpdated > agg.LastUpdated {
			agg.LastUpdated = s.LastUpdated
		}
	}

	agg.AvgCompilationTimeSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.AvgCompilationTimeSeconds })
	agg.MedianCompilationTimeSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.MedianCompilationTimeSeconds })
	agg.AvgQueueWaitSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.AvgQueueWaitSeconds })
	agg.MedianQueueWaitSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.MedianQueueWaitSeconds })
	agg.AvgTotalRequestSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.AvgTotalRequestSeconds })
	agg.MedianTotalRequestSeconds = meanNonZero(snaps, func(s stats.Snapshot) float64 { return s.MedianTotalRequestSeconds })

	agg.MinCompilationTimeSeconds = minNonZero(snaps, func(s stats.Snapshot) float64 { return s.MinCompilationTimeSeconds })
	agg.MinQueueWaitSeconds = minNonZero(snaps, func(s stats.Snapshot) float64 { return s.MinQueueWaitSeconds })
	agg.MinTotalRequestSeconds = minNonZero(snaps, func(s stats.Snapshot) float64 { return s.MinTotalRequestSeconds })

	agg.MaxCompilationTimeSeconds = maxOf(snaps, func(s stats.Snapshot) float64 { return s.MaxCompilationTimeSeconds })
	agg.MaxQueueWaitSeconds = maxOf(snaps, func(s stats.Snapshot) float64 { return s.MaxQueueWaitSeconds })
	agg.MaxTotalRequestSeconds = maxOf(snaps, func(s stats.Snapshot) float64 { return s.MaxTotalRequestSeconds })

	if agg.TotalCompilations > 0 {
		agg.SuccessRate = round2(float64(agg.SuccessfulCompilations) / float64(agg.TotalCompilations) * 100)
	}
	return agg
}

func meanNonZero(snaps []stats.Snapshot, get func(stats.Snapshot) float64) float64 {
	var sum float64
	var n int
	for _, s := range snaps {
		if v := get(s); v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round3(sum / float64(n))
}

func minNonZero(snaps []stats.Snapshot, get func(stats.Snapshot) float64) float64 {
	best := math.Inf(1)
	for _, s := range snaps {
		if v := get(s); v > 0 && v < best {
			best = v
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return round3(best)
}

func maxOf(snaps []stats.Snapshot, get func(stats.Snapshot) float64) float64 {
	var best float64
	for _, s := range snaps {
		if v := get(s); v > best {
			best = v
		}
	}
	return round3(best)
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
