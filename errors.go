package slam

import "errors"

var (
	// ErrInvalidNoiseModel is returned when a noise model is given non-positive sigma
	ErrInvalidNoiseModel = errors.New("invalid noise model")
	// ErrUnknownVariable is returned when a variable was never added
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrDuplicateVariable is returned when a variable estimate already exists
	ErrDuplicateVariable = errors.New("duplicate variable")
	// ErrSolverDivergence is returned when the solver fails to converge within its iteration budget
	ErrSolverDivergence = errors.New("solver divergence")
	// ErrInvalidFactor is returned when factor keys or values do not match the factor
	ErrInvalidFactor = errors.New("invalid factor")
	// ErrInvalidMeasurement is returned when a motion or a measurement is malformed
	ErrInvalidMeasurement = errors.New("invalid measurement")
	// ErrUnderconstrained is returned when a variable has too few constraints to be solved for
	ErrUnderconstrained = errors.New("underconstrained variable")
)
