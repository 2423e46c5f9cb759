package qbdt

import "errors"

var (
	ErrInvalidQubit       = errors.New("qubit index out of range")
	ErrInvalidRange       = errors.New("qubit range out of bounds")
	ErrDuplicateQubit     = errors.New("qubit named more than once")
	ErrQubitCountMismatch = errors.New("qubit count mismatch")
	ErrZeroProbability    = errors.New("forced outcome has zero probability")
	ErrTooManyQubits      = errors.New("register too wide for a flat state vector")
	ErrStateLength        = errors.New("state vector length does not match register")
	ErrSnapshotFormat     = errors.New("malformed snapshot")
)
