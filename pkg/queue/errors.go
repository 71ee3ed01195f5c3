package queue

import "errors"

var (
	ErrRepositoryNil          = errors.New("queue: repository cannot be nil")
	ErrPayloadNil             = errors.New("queue: payload cannot be nil")
	ErrPayloadMarshal         = errors.New("queue: failed to marshal payload")
	ErrInvalidPriority        = errors.New("queue: priority must be between 0 and 100")
	ErrNoTaskToClaim          = errors.New("queue: no task to claim")
	ErrTaskNotFound           = errors.New("queue: task not found")
	ErrTaskNotProcessing      = errors.New("queue: task is not processing")
	ErrDuplicateTask          = errors.New("queue: task already exists")
	ErrHandlerNotFound        = errors.New("queue: no handler registered for task")
	ErrNoHandlers             = errors.New("queue: no task handlers registered")
	ErrWorkerStarted          = errors.New("queue: worker already started")
	ErrWorkerNotStarted       = errors.New("queue: worker not started")
	ErrTaskAlreadyRegistered  = errors.New("queue: periodic task already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered tasks")
	ErrInvalidSchedule        = errors.New("queue: invalid schedule")
)
