package database

import "time"

type ClassChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)

	CreateCourse(params CreateCourseParams) (Course, error)
	GetCourseById(courseId int) (Course, error)
	CreateEnrollment(studentId, courseId int) (Enrollment, error)
	DeactivateEnrollment(studentId, courseId int) error

	CreateRoom(params CreateRoomParams) (Room, error)
	GetOrCreateCourseRoom(courseId int, externalId string) (Room, error)
	GetCourseRoom(courseId int) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithMembers(roomId int) (*Room, error)
	DeactivateRoom(roomId int) error
	ListRoomsForAccount(accountId int) ([]Room, error)

	AddMembership(accountId, roomId int) error
	RemoveMembership(accountId, roomId int) error
	IsMember(accountId, roomId int) (bool, error)
	AuthorizeMember(accountId, roomId int) (bool, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	MarkMessageRead(messageId, accountId, roomId int) error
	ListMessages(roomId, page, pageSize int) ([]Message, error)
	UnreadCount(roomId, accountId int) (int, error)

	GetChatSettings(accountId int) (ChatSettings, error)
	UpdateChatSettings(params UpdateChatSettingsParams) (ChatSettings, error)
	SetLastSeen(accountId int, roomExternalId string, seenAt time.Time) error
}
