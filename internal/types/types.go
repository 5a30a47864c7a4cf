package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	IsInstructor bool      `json:"is_instructor,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	CourseId    int       `json:"course_id,omitempty"`
	CreatedBy   int       `json:"created_by"`
	IsActive    bool      `json:"is_active"`
	Members     []User    `json:"members,omitempty"`
	UnreadCount int       `json:"unread_count,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Course struct {
	Id           int       `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	InstructorId int       `json:"instructor_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Enrollment struct {
	Id         int       `json:"id"`
	StudentId  int       `json:"student_id"`
	CourseId   int       `json:"course_id"`
	IsActive   bool      `json:"is_active"`
	EnrolledAt time.Time `json:"enrolled_at,omitempty"`
}

type Message struct {
	Id          int       `json:"id"`
	RoomId      int       `json:"room_id"`
	SenderId    int       `json:"sender_id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	ReplyTo     *int      `json:"reply_to"`
	IsEdited    bool      `json:"is_edited,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type ChatSettings struct {
	NotificationsEnabled bool                 `json:"notifications_enabled"`
	SoundEnabled         bool                 `json:"sound_enabled"`
	ShowOnlineStatus     bool                 `json:"show_online_status"`
	LastSeen             map[string]time.Time `json:"last_seen"`
}
