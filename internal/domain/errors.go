package domain

import "errors"

// Domain errors
var (
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrSceneNotFound       = errors.New("scene not found")
	ErrUpstreamUnavailable = errors.New("upstream ranking service unavailable")
	ErrUpstreamResponse    = errors.New("upstream ranking service returned an error")
	ErrCorruptState        = errors.New("persisted state is corrupt")
	ErrRefreshInProgress   = errors.New("refresh already in progress")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrSceneNotFound)
}
