package room

import "errors"

// Rejections. None of them mutate or persist room state.
var (
	ErrAlreadyInitialized = errors.New("room already initialized")
	ErrNotInitialized     = errors.New("room not initialized")
	ErrUnauthorized       = errors.New("gm secret mismatch")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrAlreadyRunning     = errors.New("room is not in the lobby")
	ErrNotRunning         = errors.New("room is not running")
	ErrRoomFinished       = errors.New("room has finished")
	ErrInvalidPlayer      = errors.New("unknown player")
	ErrInvalidAction      = errors.New("invalid action")
	ErrInvalidMode        = errors.New("invalid mode")

	// ErrRoomUnavailable is returned once a persistence failure has poisoned the room.
	ErrRoomUnavailable = errors.New("room unavailable")
)

// errRetired tells the Manager to resolve the code again.
var errRetired = errors.New("room actor retired")
