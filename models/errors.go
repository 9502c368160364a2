package models

import "errors"

var (
	ErrInvalidCursor    = errors.New("invalid history cursor")
	ErrStoreUnavailable = errors.New("message store unavailable")
)
