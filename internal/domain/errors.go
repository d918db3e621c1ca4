package domain

import "errors"

var (
	ErrEmptyDataset    = errors.New("dataset contains no edges")
	ErrTokenOutOfRange = errors.New("token index out of range")
	ErrEdgeOutOfRange  = errors.New("edge index out of range")
	ErrInvalidRate     = errors.New("rate must be finite and positive")
	ErrContextDone     = errors.New("context cancelled")
)
