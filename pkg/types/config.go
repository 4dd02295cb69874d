package types

import "time"

// RoomConfig holds per-room runtime configuration that can be serialized
// and shared with late joiners. Keep this struct stable and backward-compatible.
type RoomConfig struct {
	Name         string
	Game         string
	MaxPlayers   int
	Lives        int
	RoundTimeout time.Duration
	BotDelay     time.Duration
}
