package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"factod/internal/stats"
)

// Config tunes the aggregation loop.
type Config struct {
	// NginxConfig is the config file whose upstream blocks name the
	// backends to poll.
	NginxConfig string
	// Output is the YAML file the fleet document is written to.
	Output string
	// Interval between aggregation rounds. Defaults to 10s.
	Interval time.Duration
	// StatsPort overrides the port of each upstream address when
	// querying /stats. Zero keeps the upstream's own port.
	StatsPort int
	// FetchTimeout bounds each backend request. Defaults to 5s.
	FetchTimeout time.Duration
}

// Runner polls every backend named in the nginx config for its stats
// snapshot and writes the merged fleet document on a fixed interval.
// Backends that fail to answer are skipped for that round.
type Runner struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func NewRunner(cfg Config, log zerolog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		log:    log,
	}
}

// Run executes aggregation rounds until ctx is canceled. The first
// round runs immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		r.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	servers, err := ParseUpstreams(r.cfg.NginxConfig)
	if err != nil {
		r.log.Warn().Err(err).Str("path", r.cfg.NginxConfig).Msg("cannot read nginx config")
		return
	}
	if len(servers) == 0 {
		r.log.Warn().Str("path", r.cfg.NginxConfig).Msg("no upstream servers found")
		return
	}

	var snaps []stats.Snapshot
	for _, addr := range servers {
		snap, err := r.fetch(ctx, addr)
		if err != nil {
			r.log.Warn().Err(err).Str("backend", addr).Msg("stats fetch failed")
			continue
		}
		snaps = append(snaps, snap)
	}

	agg := Merge(snaps, time.Now())
	if err := r.write(agg); err != nil {
		r.log.Error().Err(err).Str("path", r.cfg.Output).Msg("cannot write aggregate")
		return
	}
	r.log.Info().
		Int("servers", len(servers)).Int("answered", len(snaps)).
		Int("total_compilations", agg.TotalCompilations).
		Float64("success_rate", agg.SuccessRate).
		Msg("aggregate written")
}

func (r *Runner) fetch(ctx context.Context, addr string) (stats.Snapshot, error) {
	var snap stats.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL(addr, r.cfg.StatsPort), nil)
	if err != nil {
		return snap, err
	}
	req.Header.Set("User-Agent", "statsagg/1.0")
	resp, err := r.client.Do(req)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// statsURL rewrites the upstream address to point at the stats port
// when one is configured.
func statsURL(addr string, statsPort int) string {
	if statsPort > 0 {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		addr = net.JoinHostPort(host, strconv.Itoa(statsPort))
	}
	return "http://" + addr + "/stats"
}

func (r *Runner) write(agg Aggregate) error {
	if dir := filepath.Dir(r.cfg.Output); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := yaml.Marshal(agg)
	if err != nil {
		return err
	}
	tmp := r.cfg.Output + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.cfg.Output)
}
