package compile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"factod/internal/blueprint"
	"factod/internal/queue"
	"factod/internal/stats"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxSourceLength = 50000
	defaultLogPollInterval = 100 * time.Millisecond
)

// Config encapsulates orchestrator tunables.
type Config struct {
	// MaxSourceLength is the largest accepted source text in bytes.
	MaxSourceLength int
	// LogPollInterval is how often the compiler's log buffer is drained
	// while a compilation runs.
	LogPollInterval time.Duration
	// Hooks receive outcome and queue depth updates, typically wired
	// to process metrics. Nil fields are skipped.
	Hooks Hooks
}

// Hooks are optional observation points on the orchestrator.
type Hooks struct {
	CompilationDone func(outcome string)
	QueueDepth      func(n int)
}

func (h Hooks) done(outcome string) {
	if h.CompilationDone != nil {
		h.CompilationDone(outcome)
	}
}

func (h Hooks) depth(n int) {
	if h.QueueDepth != nil {
		h.QueueDepth(n)
	}
}

// Service drives one compilation at a time through the admission
// queue, relays the external compiler's output as an ordered event
// stream, and feeds timing into the stats store.
type Service struct {
	queue    *queue.Queue
	stats    *stats.Store
	compiler Compiler
	maxLen   int
	logPoll  time.Duration
	hooks    Hooks
	log      zerolog.Logger
}

// NewService wires the orchestrator to its collaborators. One Service
// instance is created at process start and shared by all requests.
func NewService(q *queue.Queue, st *stats.Store, c Compiler, cfg Config, log zerolog.Logger) *Service {
	s := &Service{queue: q, stats: st, compiler: c, hooks: cfg.Hooks, log: log}
	if cfg.MaxSourceLength <= 0 {
		s.maxLen = defaultMaxSourceLength
	} else {
		s.maxLen = cfg.MaxSourceLength
	}
	if cfg.LogPollInterval <= 0 {
		s.logPoll = defaultLogPollInterval
	} else {
		s.logPoll = cfg.LogPollInterval
	}
	return s
}

// Stats returns the current public statistics snapshot.
func (s *Service) Stats() stats.Snapshot { return s.stats.Snapshot() }

// Connect records a frontend session and returns the snapshot.
func (s *Service) Connect() stats.Snapshot {
	s.stats.RecordSession()
	return s.stats.Snapshot()
}

// QueueBusy reports whether a compilation is running or queued.
func (s *Service) QueueBusy() bool { return s.queue.Busy() }

// Compile validates source, waits for the compilation slot, invokes
// the external compiler, and emits the resulting event sequence in
// order. Every exit path accounts the outcome exactly once and
// releases the slot. The returned error is non-nil only when emit
// failed or ctx was canceled; domain failures are delivered as error
// events instead.
func (s *Service) Compile(ctx context.Context, source string, opts Options, emit EmitFunc) error {
	opts = opts.Sanitized()
	if err := validateSource(source, s.maxLen); err != nil {
		s.log.Warn().Err(err).Msg("source validation failed")
		return emit(Event{Type: EventError, Content: err.Error()})
	}

	id := uuid.NewString()
	s.log.Info().Str("request_id", id).Int("source_len", len(source)).Msg("compilation request")

	enqueued := time.Now()
	if s.queue.Busy() {
		pos := s.queue.Len() + 1
		s.log.Info().Str("request_id", id).Int("position", pos).Msg("request queued")
		if err := emitQueuePosition(emit, pos); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var emitErr error
	onPosition := func(p int) {
		n := s.queue.Len()
		s.stats.SetQueueLength(n)
		s.hooks.depth(n)
		if emitErr != nil {
			return
		}
		if err := emitQueuePosition(emit, p); err != nil {
			emitErr = err
			cancel()
		}
	}
	if err := s.queue.Acquire(ctx, id, onPosition); err != nil {
		if emitErr != nil {
			return emitErr
		}
		switch {
		case queue.IsCapacity(err), queue.IsTimeout(err), queue.IsEvicted(err):
			s.log.Warn().Str("request_id", id).Err(err).Msg("slot not acquired")
			return emit(Event{Type: EventError, Content: err.Error()})
		default:
			return err
		}
	}

	s.log.Info().Str("request_id", id).Msg("acquired compilation slot")
	s.stats.RecordQueueWait(time.Since(enqueued))
	s.stats.RecordCompilationStart()

	start := time.Now()
	success := false
	defer func() {
		duration := time.Since(start)
		s.log.Info().Str("request_id", id).
			Dur("duration", duration).Bool("success", success).
			Msg("compilation finished")
		if success {
			s.stats.RecordCompilationSuccess(duration)
			s.hooks.done("success")
		} else {
			s.stats.RecordCompilationFailure(duration)
			s.hooks.done("failure")
		}
		s.stats.RecordTotalRequestTime(time.Since(enqueued))
		s.queue.Release(id)
		n := s.queue.Len()
		s.stats.SetQueueLength(n)
		s.hooks.depth(n)
	}()

	if err := emit(Event{Type: EventQueue, Content: "0"}); err != nil {
		return err
	}
	var err error
	success, err = s.run(ctx, source, opts, emit)
	return err
}

// run executes the compiler off the event path, draining its log
// buffer on a fixed interval, then emits diagnostics and the result
// events. The returned bool reports whether a blueprint was delivered.
func (s *Service) run(ctx context.Context, source string, opts Options, emit EmitFunc) (bool, error) {
	if err := emit(Event{Type: EventStatus, Content: "Compiling..."}); err != nil {
		return false, err
	}

	buf := &logBuffer{}
	type outcome struct {
		res Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		defer func() {
			// A panicking compiler counts as a failure, never a crash.
			if r := recover(); r != nil {
				resCh <- outcome{err: compilerError{msg: fmt.Sprintf("compiler panic: %v", r)}}
			}
		}()
		res, err := s.compiler.Compile(ctx, source, opts, buf)
		if err != nil && ctx.Err() == nil {
			err = compilerError{msg: err.Error()}
		}
		resCh <- outcome{res: res, err: err}
	}()

	ticker := time.NewTicker(s.logPoll)
	defer ticker.Stop()
	var out outcome
poll:
	for {
		select {
		case out = <-resCh:
			break poll
		case <-ticker.C:
			for _, line := range buf.drainLines(false) {
				if err := emit(Event{Type: EventLog, Content: line}); err != nil {
					return false, err
				}
			}
		}
	}

	for _, line := range buf.drainLines(true) {
		if err := emit(Event{Type: EventLog, Content: line}); err != nil {
			return false, err
		}
	}
	for _, msg := range out.res.Diagnostics {
		if strings.TrimSpace(msg) == "" {
			continue
		}
		if err := emit(Event{Type: EventLog, Content: msg}); err != nil {
			return false, err
		}
	}

	if out.err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.log.Error().Err(out.err).Msg("compilation error")
		if err := emit(Event{Type: EventError, Content: "Internal compiler error: " + out.err.Error()}); err != nil {
			return false, err
		}
		return false, emit(Event{Type: EventStatus, Content: "Compilation failed"})
	}

	if !out.res.Success {
		s.log.Warn().Str("reason", out.res.Artifact).Msg("compilation failed")
		if err := emit(Event{Type: EventStatus, Content: "Compilation failed: " + out.res.Artifact}); err != nil {
			return false, err
		}
		return false, emit(Event{Type: EventError, Content: out.res.Artifact})
	}

	s.log.Info().Msg("compilation successful")
	if err := emit(Event{Type: EventStatus, Content: "Compilation successful!"}); err != nil {
		return false, err
	}
	if err := emit(Event{Type: EventJSON, Content: out.res.Artifact}); err != nil {
		return false, err
	}
	encoded, err := blueprint.Encode(out.res.Artifact)
	if err != nil {
		e := encodingError{msg: "Blueprint conversion failed: " + err.Error()}
		s.log.Error().Err(err).Msg("blueprint encoding failed")
		return false, emit(Event{Type: EventError, Content: e.Error()})
	}
	if err := emit(Event{Type: EventBlueprint, Content: encoded}); err != nil {
		return false, err
	}
	return true, nil
}

func emitQueuePosition(emit EmitFunc, pos int) error {
	if err := emit(Event{Type: EventQueue, Content: strconv.Itoa(pos)}); err != nil {
		return err
	}
	return emit(Event{Type: EventStatus, Content: fmt.Sprintf("Waiting in queue (position %d)...", pos)})
}
