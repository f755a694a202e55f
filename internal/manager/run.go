package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/notify"
	"github.com/zjrosen/algomgr/internal/tracing"
)

// RunMode says whether a run was started with Execute or ExecuteAsync.
type RunMode string

const (
	ModeSync  RunMode = "sync"
	ModeAsync RunMode = "async"
)

// Run outcomes, as recorded in metrics and RunRecord.Outcome.
const (
	OutcomeExecuted  = "executed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// RunRecord describes one finished handle run.
type RunRecord struct {
	RunID      string
	HandleID   algorithm.HandleID
	Name       string
	Version    int
	Kind       Kind
	Mode       RunMode
	StartedAt  time.Time
	FinishedAt time.Time
	Executed   bool
	Outcome    string
	Error      string
}

// Duration is FinishedAt - StartedAt.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRecorder is told about every finished run. It is called on the
// goroutine that finished the run and should not block for long.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord)
}

// RunRecorderFunc adapts a func to RunRecorder.
type RunRecorderFunc func(ctx context.Context, rec RunRecord)

func (f RunRecorderFunc) RecordRun(ctx context.Context, rec RunRecord) { f(ctx, rec) }

type workerSource interface {
	CreateUnmanaged(name string, version int) (algorithm.Worker, error)
}

// execEnv is what every handle needs to run: a worker source for proxies,
// the hub workers publish on, and the run instrumentation.
type execEnv struct {
	workers  workerSource
	hub      *notify.Hub
	tracer   trace.Tracer
	recorder RunRecorder
}

type runScope struct {
	env  *execEnv
	l    *lifecycle
	ctx  context.Context
	span trace.Span
	rec  RunRecord
	once sync.Once
}

// begin opens a run on l: it assigns the run id, starts the span and marks
// the handle running. It fails if l already has a run in flight.
func (e *execEnv) begin(ctx context.Context, l *lifecycle, kind Kind, mode RunMode) (context.Context, *runScope, error) {
	runID := uuid.NewString()
	spanName := tracing.SpanExecute
	if mode == ModeAsync {
		spanName = tracing.SpanExecuteAsync
	}

	runCtx := algorithm.WithRunID(ctx, runID)
	runCtx, span := tracing.StartRun(runCtx, e.tracer, spanName, tracing.RunSpan{
		Name:     l.name,
		Version:  l.version,
		HandleID: uint64(l.id),
		Kind:     kind.String(),
		RunID:    runID,
	})

	s := &runScope{
		env:  e,
		l:    l,
		ctx:  runCtx,
		span: span,
		rec: RunRecord{
			RunID:     runID,
			HandleID:  l.id,
			Name:      l.name,
			Version:   l.version,
			Kind:      kind,
			Mode:      mode,
			StartedAt: time.Now(),
		},
	}
	if err := l.start(s); err != nil {
		span.End()
		return ctx, nil, err
	}
	return runCtx, s, nil
}

// end closes the run. Only the first call has any effect.
func (s *runScope) end(executed bool, err error) {
	s.once.Do(func() {
		executed = executed && err == nil
		s.rec.FinishedAt = time.Now()
		s.rec.Executed = executed
		s.rec.Outcome = outcomeOf(executed, err)
		if err != nil {
			s.rec.Error = err.Error()
		}

		tracing.EndRun(s.span, executed, err)
		observeRun(s.rec)
		s.l.finish(s, executed, err)

		log.Debug(log.CatManager, "Run ended",
			"handle", s.rec.HandleID, "name", s.rec.Name, "run", s.rec.RunID,
			"mode", s.rec.Mode, "outcome", s.rec.Outcome, "elapsed", s.rec.Duration())

		if s.env.recorder != nil {
			s.env.recorder.RecordRun(context.WithoutCancel(s.ctx), s.rec)
		}
	})
}

func outcomeOf(executed bool, err error) string {
	switch {
	case executed:
		return OutcomeExecuted
	case errors.Is(err, algorithm.ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// settleAsync resolves the returned Result once inner resolves, after
// release (if any) and end have run.
func settleAsync(inner *algorithm.Result, s *runScope, release func()) *algorithm.Result {
	outer := algorithm.NewResult()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error(log.CatManager, "Async settle panicked",
					"handle", s.rec.HandleID, "panic", p, "stack", string(debug.Stack()))
				err := fmt.Errorf("%w: %v", algorithm.ErrPanicked, p)
				s.end(false, err)
				outer.Resolve(false, err)
			}
		}()

		ok := inner.Wait()
		err := inner.Err()
		if release != nil {
			release()
		}
		s.end(ok, err)
		outer.Resolve(ok, err)
	}()
	return outer
}
