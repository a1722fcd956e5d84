package queue

import "errors"

var (
	// ErrValidation covers malformed enqueue inputs other than the more
	// specific dependency/duplicate errors below.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicateID is returned when Enqueue is given an id already in use.
	ErrDuplicateID = errors.New("duplicate task id")

	// ErrSelfDependency is returned when a task lists itself as a dependency.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrMissingDependency is returned when a dependency id does not exist.
	ErrMissingDependency = errors.New("dependency task does not exist")

	// ErrCycle is returned when enqueuing a task would introduce a cycle in
	// the dependency graph.
	ErrCycle = errors.New("dependency graph would contain a cycle")

	// ErrInvalidTransition is returned by ClaimFile when the task is not
	// active or the claim token does not match its current lock. The other
	// guarded mutations (MarkRunning, Complete, Release, MarkFailedTimeout)
	// report the same "did not apply" outcome as ok=false with a nil error.
	ErrInvalidTransition = errors.New("transition did not apply")

	// ErrFileOwned names a path already owned by a different active task.
	// ClaimFile does not return it; it reports that case as ok=false plus
	// the owning task id.
	ErrFileOwned = errors.New("file already owned by another task")
)
