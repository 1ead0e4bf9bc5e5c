package progress

import "errors"

var (
	// ErrDuplicateOperation is returned when starting a name that is already tracked
	ErrDuplicateOperation = errors.New("operation already exists")

	// ErrNotFound is returned when the named operation is not tracked
	ErrNotFound = errors.New("operation not found")

	// ErrInvalidStatus is returned when completing with a non-terminal status
	ErrInvalidStatus = errors.New("invalid completion status")

	// ErrAlreadyFinished is returned when mutating an operation in a terminal status
	ErrAlreadyFinished = errors.New("operation already finished")

	// ErrParentNotFound is returned in strict mode when the parent operation is unknown
	ErrParentNotFound = errors.New("parent operation not found")

	// ErrInvalidName is returned when the operation name is empty
	ErrInvalidName = errors.New("operation name is required")

	// ErrInvalidTotal is returned when the total is negative
	ErrInvalidTotal = errors.New("invalid total (must be >= 0)")
)
