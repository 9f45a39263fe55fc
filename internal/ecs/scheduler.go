package ecs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// task is one registered unit of scheduled work (spec §4.7).
type task struct {
	name      string
	fn        TaskFunc
	dependsOn *TaskHandle
	firstOnly bool
	ran       bool
	group     *Group
}

// Scheduler holds the four ordered stages of registered tasks and dispatches
// them either sequentially or in parallel (spec §4.7).
type Scheduler struct {
	mu     sync.Mutex
	stages [stageCount][]*task
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Register adds fn to stage, returning a handle later registrations can
// depend on. group, if non-nil, is materialized and lock-acquired by the
// resolver before fn runs (spec §4.7 "argument resolution").
func (s *Scheduler) Register(stage Stage, name string, fn TaskFunc, opts ...TaskOption) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &task{name: name, fn: fn}
	for _, opt := range opts {
		opt(t)
	}
	s.stages[stage] = append(s.stages[stage], t)
	return TaskHandle{stage: stage, index: len(s.stages[stage]) - 1}
}

// TaskOption configures a task at registration time.
type TaskOption func(*task)

// DependsOn makes the registered task wait for handle before it may run.
func DependsOn(handle TaskHandle) TaskOption {
	return func(t *task) { t.dependsOn = &handle }
}

// FirstTickOnly marks the task to run exactly once, on its first dispatch.
func FirstTickOnly() TaskOption {
	return func(t *task) { t.firstOnly = true }
}

// WithGroup attaches a materialized EntityGroup the task's args will carry.
func WithGroup(g *Group) TaskOption {
	return func(t *task) { t.group = g }
}

func (s *Scheduler) resolve(w *World, t *task) (TaskArgs, bool) {
	if t.firstOnly && t.ran {
		return TaskArgs{}, false
	}
	t.ran = true
	return TaskArgs{World: w, IsFirstTick: !t.firstOnly && w.tick == 1, Group: t.group}, true
}

// DispatchSequential runs every stage, in order, single-threaded, tasks in
// registration order within a stage (spec §4.7 "Sequential mode").
func (s *Scheduler) DispatchSequential(w *World) {
	for stage := Stage(0); stage < stageCount; stage++ {
		for _, t := range s.stages[stage] {
			args, ok := s.resolve(w, t)
			if !ok {
				continue
			}
			t.fn(args)
		}
	}
}

// DispatchParallel runs TickSequential exactly as sequential mode does, then
// for each remaining stage submits tasks to a job pool in registration
// order: a task with a declared dependency waits on that handle, otherwise
// it waits on the whole of the previous stage (a stage barrier), per spec
// §4.7 "Parallel mode".
func (s *Scheduler) DispatchParallel(ctx context.Context, w *World) error {
	for _, t := range s.stages[TickSequential] {
		args, ok := s.resolve(w, t)
		if !ok {
			continue
		}
		t.fn(args)
	}

	// Stages are processed one at a time, so by the time a stage's job pool
	// is submitted, every task from the previous stage has already
	// completed — that is the stage barrier. Within a stage, a task with a
	// declared same-stage dependency additionally waits on that task's done
	// channel before running.
	for stage := Tick; stage < stageCount; stage++ {
		tasks := s.stages[stage]
		done := make([]chan struct{}, len(tasks))
		for i := range tasks {
			done[i] = make(chan struct{})
		}

		g, gctx := errgroup.WithContext(ctx)
		for i, t := range tasks {
			i, t := i, t
			g.Go(func() error {
				defer close(done[i])

				if t.dependsOn != nil && t.dependsOn.stage == stage {
					select {
					case <-done[t.dependsOn.index]:
					case <-gctx.Done():
						return gctx.Err()
					}
				}

				args, ok := s.resolve(w, t)
				if !ok {
					return nil
				}
				if t.group != nil {
					unlock := w.registry.lockGroupShared(t.group.RequiredTypes())
					defer unlock()
				}
				t.fn(args)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}
