package types

import (
	"time"
)

// User is the display identity a connection presents. It is not
// authenticated and carries whatever the client supplied.
type User struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// OnlineUser is one entry in a room roster. Id is the opaque
// connection id assigned by the transport layer at upgrade time.
type OnlineUser struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Message is a persisted chat message. Id and CreatedAt are assigned
// by the repository when the message is stored.
type Message struct {
	Id        int64     `json:"id"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"createdAt"`
}
