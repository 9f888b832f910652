package room

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrJoinRequestNotFound = errors.New("join request not found")
)
