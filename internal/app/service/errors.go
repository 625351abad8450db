package service

import "errors"

var (
	// ErrInvalidURL rejects input before it reaches the registrar.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNotFound covers unknown, malformed and expired keys alike.
	ErrNotFound = errors.New("short key not found")
	// ErrKeyspaceExhausted means every registration attempt collided.
	ErrKeyspaceExhausted = errors.New("keyspace exhausted")
	// ErrStoreUnavailable wraps connection failures and timeouts of the mapping store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
