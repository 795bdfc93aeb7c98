package domain

import "errors"

var (
	// ErrNoData means the ensemble had no draws; fatal for that market only.
	ErrNoData = errors.New("no ensemble data")

	// ErrInvalidPrice means an upstream quote is outside (0,1).
	ErrInvalidPrice = errors.New("invalid price")

	// ErrExecution means the executor failed; the position was not opened.
	ErrExecution = errors.New("execution failed")

	// ErrSolvencyBreach is the only condition that terminates the process.
	ErrSolvencyBreach = errors.New("solvency breach")

	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)
