package tier1

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// Stage is a step of the linear Tier-1 pipeline. A flow reaches a stage
// once the step with that name has completed.
type Stage int

const (
	StageNone Stage = iota
	StageLoaded
	StagePrompted
	StageResponded
	StageParsed
	StageWritten
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "load"
	case StagePrompted:
		return "prompt"
	case StageResponded:
		return "call"
	case StageParsed:
		return "parse"
	case StageWritten:
		return "write"
	default:
		return "none"
	}
}

type Flow string

const (
	FlowSync     Flow = "sync"
	FlowSchedule Flow = "schedule"
	FlowCollect  Flow = "collect"
	FlowRetry    Flow = "retry"
)

type step struct {
	stage Stage
	run   func(ctx context.Context) error
}

// pipeline runs the five steps of a flow in order, tracing and timing each.
type pipeline struct {
	log *logger.Logger
}

// run executes steps, which must be exactly Load, Prompt, Call, Parse, Write
// in that order. It returns the last stage reached.
func (p pipeline) run(ctx context.Context, flow Flow, attrs []attribute.KeyValue, steps ...step) (Stage, error) {
	reached := StageNone
	for _, st := range steps {
		if st.stage != reached+1 {
			return reached, fmt.Errorf("tier1 %s: stage %s out of order after %s", flow, st.stage, reached)
		}
		if err := p.runStep(ctx, flow, attrs, st); err != nil {
			return reached, &StageError{Flow: flow, Stage: st.stage, Err: err}
		}
		reached = st.stage
	}
	return reached, nil
}

func (p pipeline) runStep(ctx context.Context, flow Flow, attrs []attribute.KeyValue, st step) error {
	ctx, span := observability.Tracer().Start(ctx, "tier1."+string(flow)+"."+st.stage.String())
	defer span.End()
	span.SetAttributes(attrs...)

	start := time.Now()
	err := st.run(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Debug("tier1 stage failed", "flow", flow, "stage", st.stage.String(), "error", err)
	}
	observability.Current().ObserveTier1Stage(string(flow), st.stage.String(), status, time.Since(start))
	return err
}
