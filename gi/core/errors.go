package core

import "errors"

var (
	ErrAllocationExhausted = errors.New("gi: allocation exhausted")
	ErrInvalidHandle       = errors.New("gi: invalid handle")
	ErrBackendCapture      = errors.New("gi: backend capture failed")
	ErrConfiguration       = errors.New("gi: invalid configuration")
)
