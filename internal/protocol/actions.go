package protocol

// Action is a game-specific tagged payload. Type values are owned by the
// concrete game; the sync core never interprets them.
type Action struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Player SocketID       `json:"player,omitempty"`
	Data   map[string]any `json:"data,omitempty"`

	// Token is a staleness guard for deferred actions (round timers, bot
	// delays): captured at schedule time, re-checked by the handler at fire
	// time, and ignored when the state has since moved on.
	Token string `json:"token,omitempty"`
}
