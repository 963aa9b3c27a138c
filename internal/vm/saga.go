package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbweber/rcloud/internal/metrics"
)

// action is a named unit of work.
type action struct {
	name string
	run  func(ctx context.Context) error
}

// step is one stage of a saga: a forward action, the error class its failure
// is reported as, and the compensations that undo it once it has succeeded.
type step struct {
	name       string
	stageErr   error
	forward    func(ctx context.Context) error
	compensate []action
}

// saga runs steps in order. When a step fails, the compensations of every
// step that already completed run in reverse order, and the failing step's
// error (wrapped in its stage error) is returned.
//
// Compensation failures are logged and counted; they never stop the rest of
// the rollback and never replace the returned error.
type saga struct {
	name    string
	log     logr.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics

	// onRollbackFailure is called for every failed compensation.
	onRollbackFailure func(ctx context.Context, action string, err error)
}

func (s *saga) run(ctx context.Context, steps []step) error {
	completed := make([]step, 0, len(steps))

	for _, st := range steps {
		if err := s.runStep(ctx, st); err != nil {
			s.rollback(ctx, completed)
			if st.stageErr == nil {
				return err
			}
			return fmt.Errorf("%w: %w", st.stageErr, err)
		}
		completed = append(completed, st)
	}
	return nil
}

func (s *saga) runStep(ctx context.Context, st step) error {
	ctx, span := s.tracer.Start(ctx, s.name+"."+st.name)
	defer span.End()

	start := time.Now()
	s.log.V(1).Info("saga step starting", "step", st.name)

	err := st.forward(ctx)
	s.metrics.ObserveStage(st.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error(err, "saga step failed", "step", st.name, "elapsed", time.Since(start).String())
		return err
	}

	s.log.V(1).Info("saga step finished", "step", st.name, "elapsed", time.Since(start).String())
	return nil
}

// rollback runs the compensations of completed in reverse order.
func (s *saga) rollback(ctx context.Context, completed []step) {
	if !hasCompensations(completed) {
		return
	}

	ctx, span := s.tracer.Start(ctx, s.name+".rollback")
	defer span.End()

	s.log.Info("rolling back", "completedSteps", len(completed))
	failed := 0
	for i := len(completed) - 1; i >= 0; i-- {
		for _, c := range completed[i].compensate {
			if err := c.run(ctx); err != nil {
				failed++
				span.AddEvent("compensation failed", trace.WithAttributes(
					attribute.String("action", c.name),
					attribute.String("error", err.Error()),
				))
				s.log.Info("warning: rollback action failed", "step", completed[i].name, "action", c.name, "error", err.Error())
				s.metrics.RollbackFailed(c.name)
				if s.onRollbackFailure != nil {
					s.onRollbackFailure(ctx, c.name, err)
				}
				continue
			}
			s.log.Info("rollback action done", "step", completed[i].name, "action", c.name)
		}
	}
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d rollback actions failed", failed))
	}
	s.log.Info("rollback complete", "failedActions", failed)
}

func hasCompensations(steps []step) bool {
	for _, st := range steps {
		if len(st.compensate) > 0 {
			return true
		}
	}
	return false
}
