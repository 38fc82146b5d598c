package models

import "errors"

// Error kinds shared by the stores, the session controller and the API.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failure")
	ErrPersistence     = errors.New("persistence failure")
)
