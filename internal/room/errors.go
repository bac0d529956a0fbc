package room

import "errors"

var (
	// ErrRoomNotFound is returned for any operation against an id with no
	// live room. Surfaced to the originating connection only.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when creating a room whose id is already
	// live. The existing room is left untouched.
	ErrRoomExists = errors.New("room code already exists")
)
