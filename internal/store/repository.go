package store

import "github.com/classchat/classchat/internal/types"

// SaveMessageParams carries the client-supplied parts of a message. The
// repository assigns id and createdAt when the row is written.
type SaveMessageParams struct {
	Content  string
	Username string
	Room     string
}

// MessageRepository is the durable, append-only store of chat messages
// keyed by room.
type MessageRepository interface {
	Ping() error
	SaveMessage(params SaveMessageParams) (types.Message, error)
	RoomHistory(room string, limit int) ([]types.Message, error)
	Close() error
}
