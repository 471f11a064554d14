package optimization

import "errors"

// Sentinel errors returned by validation and the closed-form solvers. Callers
// branch with errors.Is; wrapped messages carry the specifics. Data-quality
// problems (short series, infeasible boxes) degrade to fallback allocations
// instead of erroring.
var (
	// ErrInvalidConstraint reports a caller contract violation in the
	// constraint set, such as MinWeight > MaxWeight or a negative bound.
	ErrInvalidConstraint = errors.New("invalid constraint")

	// ErrNumericalInstability reports a covariance matrix that is not
	// positive definite or a degenerate closed-form system.
	ErrNumericalInstability = errors.New("numerical instability")
)
