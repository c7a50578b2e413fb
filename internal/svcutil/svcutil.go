// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil adapts small pieces of boilerplate around
// github.com/thejerf/suture/v4 so that the discover and dbserver packages
// can declare background work as named services without repeating the
// wiring in every file.
package svcutil

import (
	"context"
	"log/slog"

	"github.com/thejerf/suture/v4"
)

// namedService turns a plain "run until ctx is done" function into a
// suture.Service with a name useful in logs.
type namedService struct {
	serve func(ctx context.Context) error
	name  string
}

// AsService wraps serve as a suture.Service named name. serve must return
// promptly once ctx is canceled.
func AsService(serve func(ctx context.Context) error, name string) suture.Service {
	return &namedService{serve: serve, name: name}
}

func (s *namedService) Serve(ctx context.Context) error {
	slog.Debug("service starting", "service", s.name)
	err := s.serve(ctx)
	slog.Debug("service stopped", "service", s.name, slog.Any("error", err))
	return err
}

func (s *namedService) String() string { return s.name }

// SpecWithDebugLogger returns a suture.Spec that logs supervisor events
// (service restarts, backoffs) at debug level only, so that a healthy
// DeviceFinder or ConnectionManager stays quiet in normal operation.
func SpecWithDebugLogger() suture.Spec {
	return suture.Spec{
		EventHook: func(ev suture.Event) {
			slog.Debug("supervisor event", "event", ev.String())
		},
	}
}

// RunSupervisor starts sup.Serve under a context derived from parent,
// invokes done (if non-nil) once Serve has returned, and gives back the
// cancel function that stops the supervisor and everything under it.
// Serve is documented to block until its context is canceled and every
// child service has exited, so signalling done afterwards is exactly
// "the supervisor tree has fully unwound".
func RunSupervisor(parent context.Context, sup *suture.Supervisor, done func()) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		_ = sup.Serve(ctx)
		if done != nil {
			done()
		}
	}()
	return cancel
}
