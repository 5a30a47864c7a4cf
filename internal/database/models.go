package database

import "time"

const (
	RoomKindCourse  = "course"
	RoomKindPrivate = "private"
	RoomKindGroup   = "group"
	RoomKindGeneral = "general"
)

const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

const (
	CourseStatusDraft     = "draft"
	CourseStatusPublished = "published"
	CourseStatusArchived  = "archived"
)

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	IsInstructor bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Course struct {
	Id           int
	Title        string
	Slug         string
	InstructorId int
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Enrollment struct {
	Id         int
	StudentId  int
	CourseId   int
	IsActive   bool
	EnrolledAt time.Time
}

type Room struct {
	Id         int
	ExternalId string
	Name       string
	Kind       string
	CourseId   int
	CreatedBy  int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Members    []Member
}

type Member struct {
	AccountId int
	Username  string
	RoomId    int
	CreatedAt time.Time
}

type Message struct {
	Id          int
	RoomId      int
	SenderId    int
	Sender      string
	Content     string
	MessageType string
	ReplyToId   int
	IsEdited    bool
	EditedAt    time.Time
	CreatedAt   time.Time
}

type ReadReceipt struct {
	Id        int
	MessageId int
	AccountId int
	ReadAt    time.Time
}

type ChatSettings struct {
	AccountId            int
	NotificationsEnabled bool
	SoundEnabled         bool
	ShowOnlineStatus     bool
	LastSeen             map[string]time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	IsInstructor bool
}

type UpdateAccountParams struct {
	AccountId    int
	Username     string
	PasswordHash string
}

type CreateCourseParams struct {
	Title        string
	Slug         string
	InstructorId int
	Status       string
}

type CreateRoomParams struct {
	Name       string
	Kind       string
	CourseId   int
	CreatedBy  int
	ExternalId string
}

type CreateMessageParams struct {
	RoomId      int
	SenderId    int
	Content     string
	MessageType string
	ReplyToId   int
}

type UpdateChatSettingsParams struct {
	AccountId            int
	NotificationsEnabled bool
	SoundEnabled         bool
	ShowOnlineStatus     bool
}
