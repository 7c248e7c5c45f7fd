package server

import (
	"time"

	"github.com/classchat/classchat/internal/types"
)

// ClientEvent is one inbound frame. Exactly one of the event fields is
// set; the JSON key doubles as the event name on the wire.
type ClientEvent struct {
	Id         int          `json:"id,omitempty"`
	JoinRoom   *JoinRoom    `json:"joinRoom,omitempty"`
	LeaveRoom  *LeaveRoom   `json:"leaveRoom,omitempty"`
	GetHistory *GetHistory  `json:"getHistory,omitempty"`
	Message    *Publish     `json:"message,omitempty"`
	Typing     *TypingState `json:"typing,omitempty"`
	StopTyping *TypingState `json:"stopTyping,omitempty"`
	client     *Client
}

type JoinRoom struct {
	Room string      `json:"room"`
	User *types.User `json:"user,omitempty"`
}

type LeaveRoom struct {
	Room string `json:"room"`
}

type GetHistory struct {
	Room  string `json:"room"`
	Limit int    `json:"limit"`
}

type Publish struct {
	Content  string `json:"content"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

type TypingState struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// Validate performs the required-field checks for the event once, at the
// read-pump boundary. It returns an error ack to queue to the sender, or
// silent=true when the event must be dropped without any reply.
func (ev *ClientEvent) Validate() (errAck *ServerEvent, silent bool) {
	switch {
	case ev.JoinRoom != nil:
		if ev.JoinRoom.Room == "" {
			return ErrInvalidRequest(ev.Id, "Room name is required"), false
		}
	case ev.LeaveRoom != nil:
		if ev.LeaveRoom.Room == "" {
			return ErrInvalidRequest(ev.Id, "Room name is required"), false
		}
	case ev.Message != nil:
		if ev.Message.Content == "" {
			return ErrInvalidRequest(ev.Id, "Message content is required"), false
		}
	case ev.Typing != nil:
		if ev.Typing.Room == "" || ev.Typing.Username == "" {
			return nil, true
		}
	case ev.StopTyping != nil:
		if ev.StopTyping.Room == "" || ev.StopTyping.Username == "" {
			return nil, true
		}
	case ev.GetHistory != nil:
		// room and limit are defaulted by the coordinator
	default:
		return ErrInvalidMessage(ev.Id), false
	}

	return nil, false
}

// Roster is the full member snapshot broadcast as onlineUsers. A pointer
// keeps the union field optional while an empty roster still marshals
// as [] rather than disappearing.
type Roster []types.OnlineUser

// ServerEvent is one outbound frame. Exactly one union field is set.
type ServerEvent struct {
	Id          int            `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Response    *Response      `json:"response,omitempty"`
	Message     *types.Message `json:"message,omitempty"`
	OnlineUsers *Roster        `json:"onlineUsers,omitempty"`
	Typing      *TypingNotice  `json:"typing,omitempty"`
	StopTyping  *TypingNotice  `json:"stopTyping,omitempty"`
	History     *HistoryResult `json:"getHistory,omitempty"`
}

// Response is the ack returned to the originating connection only.
type Response struct {
	Success bool           `json:"success"`
	Room    string         `json:"room,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message *types.Message `json:"message,omitempty"`
}

type TypingNotice struct {
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResult struct {
	Success  bool            `json:"success"`
	Messages []types.Message `json:"messages"`
	Room     string          `json:"room,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func AckRoom(id int, room string) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			Success: true,
			Room:    room,
		},
	}
}

func AckMessage(id int, msg types.Message) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			Success: true,
			Message: &msg,
		},
	}
}

func ErrInvalidRequest(id int, reason string) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			Success: false,
			Error:   reason,
		},
	}
}

func ErrPersistenceFailure(id int) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			Success: false,
			Error:   "Failed to send message",
		},
	}
}

func ErrInvalidMessage(id int) *ServerEvent {
	ev := &ServerEvent{
		Timestamp: Now(),
		Response: &Response{
			Success: false,
			Error:   "invalid message format",
		},
	}

	if id > 0 {
		ev.Id = id
	}
	return ev
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			Success: false,
			Error:   "service unavailable",
		},
	}
}

func NewRosterEvent(users []types.OnlineUser) *ServerEvent {
	roster := Roster(users)
	if roster == nil {
		roster = Roster{}
	}

	return &ServerEvent{
		Timestamp:   Now(),
		OnlineUsers: &roster,
	}
}

func NewMessageEvent(msg types.Message) *ServerEvent {
	return &ServerEvent{
		Timestamp: Now(),
		Message:   &msg,
	}
}

func NewHistoryEvent(id int, room string, messages []types.Message) *ServerEvent {
	if messages == nil {
		messages = []types.Message{}
	}

	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		History: &HistoryResult{
			Success:  true,
			Messages: messages,
			Room:     room,
		},
	}
}

func NewHistoryErrorEvent(id int) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Timestamp: Now(),
		History: &HistoryResult{
			Success:  false,
			Messages: []types.Message{},
			Error:    "Failed to load messages",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
