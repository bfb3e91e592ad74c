package graph

import (
	"context"
	"fmt"
	"time"
)

// StageHook observes stage completion. Hooks must be safe for concurrent use;
// a Runnable may be invoked from many goroutines.
type StageHook[S any] func(stage string, elapsed time.Duration, err error)

// Runnable is a compiled graph. It executes its stages in order, threading
// the state value through each one.
type Runnable[S any] struct {
	name   string
	stages []node[S]
	hook   StageHook[S]
	topo   Topology
}

// Name returns the compiled graph's name.
func (r *Runnable[S]) Name() string {
	return r.name
}

// Invoke runs every stage from the entry point to END. The state returned by
// each stage feeds the next. Context cancellation is checked between stages;
// a stage error aborts the chain and is returned wrapped with the stage name,
// alongside the state as it entered the failing stage.
func (r *Runnable[S]) Invoke(ctx context.Context, state S) (S, error) {
	for _, st := range r.stages {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		start := time.Now()
		next, err := st.fn(ctx, state)
		if r.hook != nil {
			r.hook(st.name, time.Since(start), err)
		}
		if err != nil {
			return state, fmt.Errorf("stage %s: %w", st.name, err)
		}
		state = next
	}

	return state, nil
}
