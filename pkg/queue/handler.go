package queue

import (
	"context"
	"encoding/json"
)

type (
	// Handler runs tasks with a given name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler decodes the JSON payload into T and calls fn. The handler is
// named after T.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	return &typedHandler[T]{name: TaskName[T](), fn: fn}
}

// NewPeriodicTaskHandler handles tasks created by the Scheduler under name.
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return &periodicHandler{name: name, fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	return h.fn(ctx, v)
}

type periodicHandler struct {
	name string
	fn   PeriodicTaskHandlerFunc
}

func (h *periodicHandler) Name() string { return h.name }

func (h *periodicHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}
