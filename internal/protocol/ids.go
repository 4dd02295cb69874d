package protocol

import "github.com/google/uuid"

type SocketID string

type RoomID string

func NewSocketID() SocketID { return SocketID(uuid.NewString()) }
func NewRoomID() RoomID     { return RoomID(uuid.NewString()) }

// NewActionID generates a unique action id for deduplication.
func NewActionID() string { return uuid.NewString() }
