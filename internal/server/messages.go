package server

import (
	"time"

	"github.com/coursehub/classchat/internal/database"
)

const (
	// inbound frame kinds
	FrameTypeMessage     = "message"
	FrameTypeTyping      = "typing"
	FrameTypeMessageRead = "message_read"

	// outbound-only frame kinds
	FrameTypeUserJoined = "user_joined"
	FrameTypeUserLeft   = "user_left"
)

// ClientFrame is one inbound websocket frame. Type defaults to
// "message" when omitted.
type ClientFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	ReplyTo   *int   `json:"reply_to,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	MessageId int    `json:"message_id,omitempty"`
}

type inboundFrame struct {
	frame  ClientFrame
	client *Client
}

type MessagePayload struct {
	Id          int       `json:"id"`
	Content     string    `json:"content"`
	Sender      string    `json:"sender"`
	SenderId    int       `json:"sender_id"`
	Timestamp   time.Time `json:"timestamp"`
	ReplyTo     *int      `json:"reply_to"`
	MessageType string    `json:"message_type"`
}

// ServerFrame is one outbound websocket frame. Exactly one of the
// payload fields is populated per frame kind.
type ServerFrame struct {
	Type     string          `json:"type,omitempty"`
	Message  *MessagePayload `json:"message,omitempty"`
	Username string          `json:"username,omitempty"`
	UserId   int             `json:"user_id,omitempty"`
	IsTyping *bool           `json:"is_typing,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func MessageFrame(msg database.Message) *ServerFrame {
	var replyTo *int
	if msg.ReplyToId != 0 {
		replyTo = &msg.ReplyToId
	}

	return &ServerFrame{
		Type: FrameTypeMessage,
		Message: &MessagePayload{
			Id:          msg.Id,
			Content:     msg.Content,
			Sender:      msg.Sender,
			SenderId:    msg.SenderId,
			Timestamp:   msg.CreatedAt,
			ReplyTo:     replyTo,
			MessageType: msg.MessageType,
		},
	}
}

func UserJoinedFrame(username string, userId int) *ServerFrame {
	return &ServerFrame{
		Type:     FrameTypeUserJoined,
		Username: username,
		UserId:   userId,
	}
}

func UserLeftFrame(username string, userId int) *ServerFrame {
	return &ServerFrame{
		Type:     FrameTypeUserLeft,
		Username: username,
		UserId:   userId,
	}
}

func TypingFrame(username string, isTyping bool) *ServerFrame {
	return &ServerFrame{
		Type:     FrameTypeTyping,
		Username: username,
		IsTyping: &isTyping,
	}
}

func ErrInvalidFormat() *ServerFrame {
	return &ServerFrame{Error: "invalid format"}
}

func ErrEmptyMessage() *ServerFrame {
	return &ServerFrame{Error: "message cannot be empty"}
}

func ErrInternalError() *ServerFrame {
	return &ServerFrame{Error: "internal server error"}
}

func ErrServiceUnavailable() *ServerFrame {
	return &ServerFrame{Error: "service unavailable"}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
