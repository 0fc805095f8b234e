package cache

import "errors"

var (
	ErrCacheMiss      = errors.New("cache miss")
	ErrInvalidKey     = errors.New("invalid cache key")
	ErrConnectionLost = errors.New("cache connection lost")
)
