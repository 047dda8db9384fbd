package main

import (
	"context"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

// evaluator consumes published reports. *alerts.Engine satisfies it.
type evaluator interface {
	Evaluate(h health.SystemHealth, as []anomaly.Anomaly)
}

// pipeline runs the sampling loop and hands every published report to an
// evaluator.
type pipeline struct {
	unsubscribe func()
	runDone     chan struct{}
	evalDone    chan struct{}
}

func startPipeline(ctx context.Context, eng *engine.Engine, ev evaluator) *pipeline {
	reports, unsubscribe := eng.Subscribe(4)
	p := &pipeline{
		unsubscribe: unsubscribe,
		runDone:     make(chan struct{}),
		evalDone:    make(chan struct{}),
	}
	go func() {
		defer close(p.evalDone)
		for rep := range reports {
			ev.Evaluate(rep.SystemHealth, rep.Anomalies)
		}
	}()
	go func() {
		defer close(p.runDone)
		eng.Run(ctx)
	}()
	return p
}

// wait blocks until the sampling loop has returned, which happens once ctx
// is cancelled and any tick in progress has published. It then stops the
// subscription and returns after the evaluator has drained every report
// already delivered.
func (p *pipeline) wait() {
	<-p.runDone
	p.unsubscribe()
	<-p.evalDone
}
