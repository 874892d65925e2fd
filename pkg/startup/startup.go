// Package startup brings the service's dependencies up in dependency order,
// retrying the whole sequence with a fibonacci backoff.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one piece of infrastructure the service needs before it can serve.
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

// DefaultBackoffUnit is the first retry delay; later delays follow the fibonacci sequence.
const DefaultBackoffUnit = time.Second

type Startup struct {
	dependencies map[string]Dependency
	order        []string
	started      []string
	statuses     map[string]Status
	logger       ectologger.Logger
	attempt      int
	maxAttempts  int
	backoffUnit  time.Duration
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		logger:       logger,
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		maxAttempts:  maxAttempts,
		backoffUnit:  DefaultBackoffUnit,
	}
}

// WithBackoffUnit overrides the first retry delay.
func (s *Startup) WithBackoffUnit(unit time.Duration) *Startup {
	s.backoffUnit = unit
	return s
}

// AddDependency registers a dependency. Dependencies start in registration
// order unless DependsOn pulls another one forward.
func (s *Startup) AddDependency(dependency Dependency) {
	name := dependency.GetName()
	if _, ok := s.dependencies[name]; !ok {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

// Status returns the current status of a dependency.
func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Attempts returns how many startup attempts the last Start made.
func (s *Startup) Attempts() int {
	return s.attempt
}

func (s *Startup) Start(ctx context.Context) error {
	s.attempt = 0
	var lastErr error

	a, b := 1, 1
	for s.attempt < s.maxAttempts {
		s.attempt++
		s.logger.WithField("attempt", s.attempt).Infof("Beginning startup attempt %d", s.attempt)

		lastErr = nil
		for _, name := range s.order {
			if err := s.startDependency(ctx, name, nil); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, s.attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}

		if s.attempt >= s.maxAttempts {
			return fmt.Errorf("startup failed after %d attempts: %w", s.attempt, lastErr)
		}

		waitTime := time.Duration(a) * s.backoffUnit
		s.logger.Infof("Retrying in %s (attempt %d/%d)", waitTime, s.attempt, s.maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}

		a, b = b, a+b
	}

	return lastErr
}

func (s *Startup) startDependency(ctx context.Context, name string, visiting []string) error {
	if s.statuses[name] == StatusStarted {
		return nil
	}
	for _, v := range visiting {
		if v == name {
			return fmt.Errorf("dependency cycle through '%s'", name)
		}
	}
	dependency, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown dependency '%s'", name)
	}

	visiting = append(visiting, name)
	for _, dependencyName := range dependency.DependsOn() {
		if err := s.startDependency(ctx, dependencyName, visiting); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to start dependency '%s'", name)
		return err
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop stops every started dependency in the reverse of the order it started.
// It keeps going past failures and returns the first error.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		if s.statuses[name] != StatusStarted {
			continue
		}
		if err := s.stopDependency(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.started = nil
	return firstErr
}

func (s *Startup) stopDependency(ctx context.Context, name string) error {
	log := s.logger.WithField("dependency", name)
	log.Infof("Stopping dependency '%s'", name)
	if err := s.dependencies[name].Stop(ctx); err != nil {
		log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
		s.statuses[name] = StatusFailed
		return err
	}
	log.Infof("Dependency '%s' stopped", name)
	s.statuses[name] = StatusStopped
	return nil
}

// Func adapts plain functions into a Dependency. A nil Stop is a no-op.
type Func struct {
	Name     string
	Requires []string
	StartFn  func(ctx context.Context) error
	StopFn   func(ctx context.Context) error
}

func (f Func) GetName() string     { return f.Name }
func (f Func) DependsOn() []string { return f.Requires }

func (f Func) Start(ctx context.Context) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}
