package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockClassChatRepository struct {
	mock.Mock
}

func (m *MockClassChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockClassChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockClassChatRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockClassChatRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockClassChatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockClassChatRepository) CreateCourse(params CreateCourseParams) (Course, error) {
	args := m.Called(params)
	return args.Get(0).(Course), args.Error(1)
}
func (m *MockClassChatRepository) GetCourseById(courseId int) (Course, error) {
	args := m.Called(courseId)
	return args.Get(0).(Course), args.Error(1)
}
func (m *MockClassChatRepository) CreateEnrollment(studentId, courseId int) (Enrollment, error) {
	args := m.Called(studentId, courseId)
	return args.Get(0).(Enrollment), args.Error(1)
}
func (m *MockClassChatRepository) DeactivateEnrollment(studentId, courseId int) error {
	args := m.Called(studentId, courseId)
	return args.Error(0)
}
func (m *MockClassChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockClassChatRepository) GetOrCreateCourseRoom(courseId int, externalId string) (Room, error) {
	args := m.Called(courseId, externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockClassChatRepository) GetCourseRoom(courseId int) (Room, error) {
	args := m.Called(courseId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockClassChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockClassChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	args := m.Called(roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassChatRepository) DeactivateRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockClassChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockClassChatRepository) AddMembership(accountId, roomId int) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockClassChatRepository) RemoveMembership(accountId, roomId int) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockClassChatRepository) IsMember(accountId, roomId int) (bool, error) {
	args := m.Called(accountId, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockClassChatRepository) AuthorizeMember(accountId, roomId int) (bool, error) {
	args := m.Called(accountId, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockClassChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockClassChatRepository) MarkMessageRead(messageId, accountId, roomId int) error {
	args := m.Called(messageId, accountId, roomId)
	return args.Error(0)
}
func (m *MockClassChatRepository) ListMessages(roomId, page, pageSize int) ([]Message, error) {
	args := m.Called(roomId, page, pageSize)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockClassChatRepository) UnreadCount(roomId, accountId int) (int, error) {
	args := m.Called(roomId, accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockClassChatRepository) GetChatSettings(accountId int) (ChatSettings, error) {
	args := m.Called(accountId)
	return args.Get(0).(ChatSettings), args.Error(1)
}
func (m *MockClassChatRepository) UpdateChatSettings(params UpdateChatSettingsParams) (ChatSettings, error) {
	args := m.Called(params)
	return args.Get(0).(ChatSettings), args.Error(1)
}
func (m *MockClassChatRepository) SetLastSeen(accountId int, roomExternalId string, seenAt time.Time) error {
	args := m.Called(accountId, roomExternalId, seenAt)
	return args.Error(0)
}
