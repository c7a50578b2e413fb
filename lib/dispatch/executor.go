// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dispatch provides the serial "event dispatch" executor that
// DeviceFinder uses to deliver presence-change notifications off the
// receiver thread (spec.md §4.1, §6). Hosts with a UI event loop (Qt,
// a GUI toolkit's main thread, ...) can supply their own Executor;
// NewSerialExecutor here builds the library-owned single-worker fallback
// spec.md §9 says is acceptable.
package dispatch

import (
	"log/slog"
)

// Executor runs submitted tasks one at a time, in submission order. A
// panic in one task must not prevent later tasks from running.
type Executor interface {
	// Submit enqueues task for execution. It must not block the caller
	// on task's completion.
	Submit(task func())
	// Close stops accepting new tasks. Tasks already submitted are
	// still run before the worker exits.
	Close()
}

// serial is the default Executor: a single goroutine draining a channel
// of tasks, in FIFO order, recovering from panics so one bad listener
// cannot wedge the worker or silently drop later notifications.
type serial struct {
	tasks   chan func()
	done    chan struct{}
	onPanic func(recovered any)
}

// NewSerialExecutor starts and returns the default single-worker
// Executor. queueDepth bounds how many pending notifications may be
// buffered before Submit blocks; callers that need a non-blocking
// Submit under load should size it generously (DeviceFinder's own
// notification volume is tiny — at most one event per device
// transition).
func NewSerialExecutor(queueDepth int) Executor {
	return NewSerialExecutorWithPanicHandler(queueDepth, nil)
}

// NewSerialExecutorWithPanicHandler is NewSerialExecutor, additionally
// routing any recovered listener panic through onPanic (e.g.
// crashreporting.Reporter.CapturePanic) before continuing. onPanic may
// be nil.
func NewSerialExecutorWithPanicHandler(queueDepth int, onPanic func(recovered any)) Executor {
	if queueDepth < 1 {
		queueDepth = 1
	}
	e := &serial{
		tasks:   make(chan func(), queueDepth),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	go e.run()
	return e
}

func (e *serial) run() {
	for task := range e.tasks {
		e.runOne(task)
	}
	close(e.done)
}

func (e *serial) runOne(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("listener panicked", "recover", r)
			if e.onPanic != nil {
				e.onPanic(r)
			}
		}
	}()
	task()
}

func (e *serial) Submit(task func()) {
	e.tasks <- task
}

func (e *serial) Close() {
	close(e.tasks)
	<-e.done
}
