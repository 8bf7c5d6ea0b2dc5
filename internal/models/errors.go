package models

import "errors"

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Configuration and dataset validation
	ErrConfigInvalid  ErrorType = "config_invalid"
	ErrDatasetInvalid ErrorType = "dataset_invalid"

	// Reevaluation
	ErrReevaluationRejected ErrorType = "reevaluation_rejected"

	// Catch-all for worker failures
	ErrInternalError ErrorType = "internal_error"
)

// Sentinel errors for callers that branch on failure kind.
var (
	// ErrInvalidConfig wraps every fail-fast configuration rejection.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTrajectoryMismatch reports a trajectory presented against a dataset
	// it was not produced from.
	ErrTrajectoryMismatch = errors.New("trajectory does not match dataset")

	// ErrTrajectoryTruncated reports a trajectory with no terminal record.
	ErrTrajectoryTruncated = errors.New("trajectory has no terminal record")

	// ErrNoOutcomes reports an aggregation request with nothing to reduce.
	ErrNoOutcomes = errors.New("no trial outcomes to aggregate")
)
