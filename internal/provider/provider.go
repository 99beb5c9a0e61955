// Package provider holds the client for asynchronous image-generation
// backends: create a remote task, poll it to a terminal state within a
// bounded time, and retrieve the result.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TaskState is the remote job state machine: CREATED -> RUNNING* ->
// {SUCCESS | FAIL}. Polling additionally bounds the RUNNING loop with a
// timeout. States are a closed set; anything else from the wire is an
// error, never a silent fallthrough.
type TaskState string

const (
	StateCreated TaskState = "created"
	StateRunning TaskState = "running"
	StateSuccess TaskState = "success"
	StateFail    TaskState = "fail"
)

// ErrUnavailable covers create/poll transport failures, non-success
// responses, and unparsable bodies. Maps to 503 at the HTTP surface.
var ErrUnavailable = errors.New("provider unavailable")

// ErrTimeout is returned when polling exceeds its deadline. Maps to 408.
var ErrTimeout = errors.New("provider poll timed out")

// FailedError carries the remote failure message for a task that reached
// the fail state. The message is logged, never surfaced verbatim.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("provider reported task failure: %s", e.Message)
}

// TaskRequest is the payload for task creation. Exactly one of
// ImageBase64 or ImageURL is set: small inputs travel inline, larger
// ones are pre-uploaded and referenced by URL.
type TaskRequest struct {
	Model       string
	Prompt      string
	ImageBase64 string
	ImageURL    string
	AspectRatio string
}

// TaskResult is the terminal success payload of one remote task.
type TaskResult struct {
	TaskID     string
	ResultURLs []string
}

// Provider creates remote generation tasks and polls them to completion.
type Provider interface {
	// CreateTask submits the task and returns the remote task ID.
	CreateTask(ctx context.Context, req TaskRequest) (string, error)

	// PollForCompletion queries the task at a fixed interval until it
	// reaches success or fail, or until timeout elapses. Returns within
	// timeout plus one interval.
	PollForCompletion(ctx context.Context, taskID string, timeout, interval time.Duration) (*TaskResult, error)
}
