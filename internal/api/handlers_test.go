package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/classchat/internal/config"
	"github.com/coursehub/classchat/internal/database"
	"github.com/coursehub/classchat/internal/server"
	"github.com/coursehub/classchat/internal/stats"
	"github.com/coursehub/classchat/internal/testutil"
	"github.com/coursehub/classchat/internal/types"
)

func newTestApp(t *testing.T, db database.ClassChatRepository) *ClassChatApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, su)
	require.NoError(t, err)

	app, err := NewClassChatApp(http.NewServeMux(), logger, cs, db, su, &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("0123456789abcdef0123456789abcdef"),
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	require.NoError(t, err)

	return app
}

func authedRequest(method, target string, body io.Reader, userId int) *http.Request {
	r := httptest.NewRequest(method, target, body)
	return r.WithContext(WithUserId(r.Context(), userId))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealthCheck(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("Ping").Return(nil).Once()

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.healthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	db.ExpectedCalls = nil
	db.On("Ping").Return(errors.New("db down")).Once()

	w = httptest.NewRecorder()
	s.healthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateAccount(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
		return p.Username == "alice" &&
			p.EmailAddress == "alice@example.com" &&
			verifyPassword(p.PasswordHash, "s3cret-passwd")
	})).Return(database.Account{Id: 1, Username: "alice", EmailAddress: "alice@example.com"}, nil)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.createAccount(w, httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"alice@example.com","username":"alice","password":"s3cret-passwd"}`)))

	require.Equal(t, http.StatusCreated, w.Code)
	user := decodeBody[types.User](t, w)
	assert.Equal(t, 1, user.Id)
	assert.Equal(t, "alice", user.Username)
	assert.NotContains(t, w.Body.String(), "s3cret-passwd")
	db.AssertExpectations(t)
}

func TestCreateAccountValidation(t *testing.T) {
	db := &database.MockClassChatRepository{}
	s := newTestApp(t, db)

	tt := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad email", `{"email":"nope","username":"alice","password":"s3cret-passwd"}`},
		{"short password", `{"email":"alice@example.com","username":"alice","password":"hi"}`},
		{"short username", `{"email":"alice@example.com","username":"al","password":"s3cret-passwd"}`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.createAccount(w, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	db.AssertNotCalled(t, "CreateAccount", mock.Anything)
}

func TestLogin(t *testing.T) {
	hash, err := hashPassword("s3cret-passwd")
	require.NoError(t, err)

	db := &database.MockClassChatRepository{}
	db.On("GetAccountByEmail", "alice@example.com").Return(database.Account{
		Id: 1, Username: "alice", EmailAddress: "alice@example.com", PasswordHash: hash,
	}, nil)
	db.On("GetAccountByEmail", "nobody@example.com").Return(database.Account{}, sql.ErrNoRows)

	s := newTestApp(t, db)

	t.Run("success sets session cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"alice@example.com","password":"s3cret-passwd"}`)))

		require.Equal(t, http.StatusOK, w.Code)

		resp := w.Result()
		defer resp.Body.Close()
		var sessionCookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == tokenCookieKey {
				sessionCookie = c
			}
		}
		require.NotNil(t, sessionCookie, "expected session cookie to be set")
		assert.True(t, sessionCookie.HttpOnly)

		userId, err := s.extractUserIdFromToken(sessionCookie.Value)
		require.NoError(t, err)
		assert.Equal(t, 1, userId)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown account", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"s3cret-passwd"}`)))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateCourse(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetAccountById", 1).Return(database.Account{Id: 1, Username: "prof", IsInstructor: true}, nil)
	db.On("GetAccountById", 2).Return(database.Account{Id: 2, Username: "student"}, nil)
	db.On("CreateCourse", database.CreateCourseParams{
		Title: "Calculus I", Slug: "calc-1", InstructorId: 1, Status: database.CourseStatusDraft,
	}).Return(database.Course{Id: 5, Title: "Calculus I", Slug: "calc-1", InstructorId: 1, Status: database.CourseStatusDraft}, nil)

	s := newTestApp(t, db)

	t.Run("instructor", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createCourse(w, authedRequest(http.MethodPost, "/api/courses",
			strings.NewReader(`{"title":"Calculus I","slug":"calc-1"}`), 1))

		require.Equal(t, http.StatusCreated, w.Code)
		course := decodeBody[types.Course](t, w)
		assert.Equal(t, 5, course.Id)
	})

	t.Run("publishing creates the course room", func(t *testing.T) {
		db.On("CreateCourse", database.CreateCourseParams{
			Title: "Calculus II", Slug: "calc-2", InstructorId: 1, Status: database.CourseStatusPublished,
		}).Return(database.Course{Id: 6, Title: "Calculus II", Slug: "calc-2", InstructorId: 1, Status: database.CourseStatusPublished}, nil)
		db.On("GetOrCreateCourseRoom", 6, mock.AnythingOfType("string")).
			Return(database.Room{Id: 8, ExternalId: "xyz789", Kind: database.RoomKindCourse, CourseId: 6}, nil)

		w := httptest.NewRecorder()
		s.createCourse(w, authedRequest(http.MethodPost, "/api/courses",
			strings.NewReader(`{"title":"Calculus II","slug":"calc-2","status":"published"}`), 1))

		require.Equal(t, http.StatusCreated, w.Code)
		db.AssertCalled(t, "GetOrCreateCourseRoom", 6, mock.AnythingOfType("string"))
	})

	t.Run("draft courses get no room", func(t *testing.T) {
		db.AssertNotCalled(t, "GetOrCreateCourseRoom", 5, mock.AnythingOfType("string"))
	})

	t.Run("students may not create courses", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createCourse(w, authedRequest(http.MethodPost, "/api/courses",
			strings.NewReader(`{"title":"Calculus I","slug":"calc-1"}`), 2))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	db.AssertExpectations(t)
}

func TestEnrollCourse(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetCourseById", 5).Return(database.Course{Id: 5, Title: "Calculus I", InstructorId: 1}, nil)
	db.On("CreateEnrollment", 2, 5).Return(database.Enrollment{Id: 9, StudentId: 2, CourseId: 5, IsActive: true}, nil)
	db.On("GetOrCreateCourseRoom", 5, mock.AnythingOfType("string")).Return(database.Room{Id: 3, ExternalId: "abc123", Kind: database.RoomKindCourse, CourseId: 5}, nil)
	db.On("AddMembership", 2, 3).Return(nil)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.enrollCourse(w, authedRequest(http.MethodPost, "/api/courses/enroll",
		strings.NewReader(`{"course_id":5}`), 2))

	require.Equal(t, http.StatusCreated, w.Code)
	enrollment := decodeBody[types.Enrollment](t, w)
	assert.Equal(t, 2, enrollment.StudentId)
	assert.True(t, enrollment.IsActive)
	db.AssertExpectations(t)
}

func TestEnrollCourseNotFound(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetCourseById", 99).Return(database.Course{}, sql.ErrNoRows)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.enrollCourse(w, authedRequest(http.MethodPost, "/api/courses/enroll",
		strings.NewReader(`{"course_id":99}`), 2))

	assert.Equal(t, http.StatusNotFound, w.Code)
	db.AssertNotCalled(t, "CreateEnrollment", mock.Anything, mock.Anything)
}

func TestUnenrollCourse(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("DeactivateEnrollment", 2, 5).Return(nil)
	db.On("GetCourseRoom", 5).Return(database.Room{Id: 3, CourseId: 5}, nil)
	db.On("RemoveMembership", 2, 3).Return(nil)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.unenrollCourse(w, authedRequest(http.MethodDelete, "/api/courses/enroll?course_id=5", nil, 2))

	assert.Equal(t, http.StatusNoContent, w.Code)
	db.AssertExpectations(t)
}

func TestUnenrollCourseWithoutRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("DeactivateEnrollment", 2, 5).Return(nil)
	db.On("GetCourseRoom", 5).Return(database.Room{}, sql.ErrNoRows)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.unenrollCourse(w, authedRequest(http.MethodDelete, "/api/courses/enroll?course_id=5", nil, 2))

	assert.Equal(t, http.StatusNoContent, w.Code)
	db.AssertNotCalled(t, "RemoveMembership", mock.Anything, mock.Anything)
}

func TestCreateRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetCourseById", 5).Return(database.Course{Id: 5, InstructorId: 1}, nil)
	db.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
		return p.Kind == database.RoomKindCourse && p.CourseId == 5 && p.CreatedBy == 1 && p.ExternalId != ""
	})).Return(database.Room{Id: 3, ExternalId: "abc123", Name: "Calc chat", Kind: database.RoomKindCourse, CourseId: 5, CreatedBy: 1, IsActive: true}, nil)

	s := newTestApp(t, db)

	t.Run("course room by its instructor", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createRoom(w, authedRequest(http.MethodPost, "/api/rooms",
			strings.NewReader(`{"name":"Calc chat","kind":"course","course_id":5}`), 1))

		require.Equal(t, http.StatusCreated, w.Code)
		room := decodeBody[types.Room](t, w)
		assert.Equal(t, "abc123", room.ExternalId)
	})

	t.Run("course room by someone else", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createRoom(w, authedRequest(http.MethodPost, "/api/rooms",
			strings.NewReader(`{"name":"Calc chat","kind":"course","course_id":5}`), 2))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("course room requires course id", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createRoom(w, authedRequest(http.MethodPost, "/api/rooms",
			strings.NewReader(`{"name":"Calc chat","kind":"course"}`), 1))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.createRoom(w, authedRequest(http.MethodPost, "/api/rooms",
			strings.NewReader(`{"name":"Calc chat","kind":"secret"}`), 1))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJoinRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "priv1").Return(database.Room{Id: 1, ExternalId: "priv1", Kind: database.RoomKindPrivate}, nil)
	db.On("GetRoomByExternalId", "grp1").Return(database.Room{Id: 2, ExternalId: "grp1", Kind: database.RoomKindGroup}, nil)
	db.On("GetRoomByExternalId", "crs1").Return(database.Room{Id: 3, ExternalId: "crs1", Kind: database.RoomKindCourse}, nil)
	db.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows)
	db.On("AddMembership", 2, 2).Return(nil)
	db.On("AuthorizeMember", 2, 3).Return(true, nil)
	db.On("AuthorizeMember", 4, 3).Return(false, nil)

	s := newTestApp(t, db)

	join := func(userId int, roomId string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		s.joinRoom(w, authedRequest(http.MethodPost, "/api/rooms/join",
			strings.NewReader(`{"room_id":"`+roomId+`"}`), userId))
		return w
	}

	t.Run("private rooms are invite only", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, join(2, "priv1").Code)
	})

	t.Run("group rooms are open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, join(2, "grp1").Code)
		db.AssertCalled(t, "AddMembership", 2, 2)
	})

	t.Run("course rooms admit enrolled students", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, join(2, "crs1").Code)
	})

	t.Run("course rooms reject outsiders", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, join(4, "crs1").Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, join(2, "nope").Code)
	})
}

func TestGetRoom(t *testing.T) {
	room := database.Room{Id: 3, ExternalId: "abc123", Name: "Calc chat", Kind: database.RoomKindCourse, IsActive: true}
	full := room
	full.Members = []database.Member{
		{AccountId: 1, Username: "prof"},
		{AccountId: 2, Username: "alice"},
	}

	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "abc123").Return(room, nil)
	db.On("IsMember", 2, 3).Return(true, nil)
	db.On("IsMember", 4, 3).Return(false, nil)
	db.On("GetRoomWithMembers", 3).Return(&full, nil)
	db.On("UnreadCount", 3, 2).Return(7, nil)

	s := newTestApp(t, db)

	t.Run("member", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getRoom(w, authedRequest(http.MethodGet, "/api/rooms?id=abc123", nil, 2))

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[types.Room](t, w)
		assert.Equal(t, "abc123", resp.ExternalId)
		assert.Len(t, resp.Members, 2)
		assert.Equal(t, 7, resp.UnreadCount)
	})

	t.Run("non-member", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getRoom(w, authedRequest(http.MethodGet, "/api/rooms?id=abc123", nil, 4))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getRoom(w, authedRequest(http.MethodGet, "/api/rooms", nil, 2))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "abc123").Return(database.Room{Id: 3, ExternalId: "abc123", CreatedBy: 1, IsActive: true}, nil)
	db.On("DeactivateRoom", 3).Return(nil)

	s := newTestApp(t, db)
	go s.cs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.cs.Shutdown(ctx))
	}()

	t.Run("only the creator may delete", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.deleteRoom(w, authedRequest(http.MethodDelete, "/api/rooms?id=abc123", nil, 2))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("creator", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.deleteRoom(w, authedRequest(http.MethodDelete, "/api/rooms?id=abc123", nil, 1))
		assert.Equal(t, http.StatusNoContent, w.Code)
		db.AssertCalled(t, "DeactivateRoom", 3)
	})
}

func TestListRooms(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("ListRoomsForAccount", 2).Return([]database.Room{
		{Id: 3, ExternalId: "abc123", Name: "Calc chat", Kind: database.RoomKindCourse},
		{Id: 4, ExternalId: "def456", Name: "Study group", Kind: database.RoomKindGroup},
	}, nil)
	db.On("UnreadCount", 3, 2).Return(2, nil)
	db.On("UnreadCount", 4, 2).Return(0, nil)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.listRooms(w, authedRequest(http.MethodGet, "/api/rooms/list", nil, 2))

	require.Equal(t, http.StatusOK, w.Code)
	rooms := decodeBody[[]types.Room](t, w)
	require.Len(t, rooms, 2)
	assert.Equal(t, 2, rooms[0].UnreadCount)
	assert.Equal(t, 0, rooms[1].UnreadCount)
}

func TestMarkRoomSeen(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("SetLastSeen", 2, "abc123", mock.AnythingOfType("time.Time")).Return(nil)

	s := newTestApp(t, db)

	w := httptest.NewRecorder()
	s.markRoomSeen(w, authedRequest(http.MethodPost, "/api/rooms/seen",
		strings.NewReader(`{"room_id":"abc123"}`), 2))

	assert.Equal(t, http.StatusNoContent, w.Code)
	db.AssertExpectations(t)
}

func TestGetMessages(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "abc123").Return(database.Room{Id: 3, ExternalId: "abc123"}, nil)
	db.On("IsMember", 2, 3).Return(true, nil)
	db.On("IsMember", 4, 3).Return(false, nil)
	db.On("ListMessages", 3, 2, 25).Return([]database.Message{
		{Id: 1, RoomId: 3, SenderId: 1, Sender: "prof", Content: "welcome", MessageType: database.MessageTypeText},
		{Id: 2, RoomId: 3, SenderId: 2, Sender: "alice", Content: "hi", MessageType: database.MessageTypeText, ReplyToId: 1},
	}, nil)

	s := newTestApp(t, db)

	t.Run("member with paging", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getMessages(w, authedRequest(http.MethodGet, "/api/messages?room_id=abc123&page=2&page_size=25", nil, 2))

		require.Equal(t, http.StatusOK, w.Code)
		messages := decodeBody[[]types.Message](t, w)
		require.Len(t, messages, 2)
		assert.Equal(t, "welcome", messages[0].Content)
		require.NotNil(t, messages[1].ReplyTo)
		assert.Equal(t, 1, *messages[1].ReplyTo)
	})

	t.Run("non-member", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getMessages(w, authedRequest(http.MethodGet, "/api/messages?room_id=abc123", nil, 4))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("bad paging", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.getMessages(w, authedRequest(http.MethodGet, "/api/messages?room_id=abc123&page=x", nil, 2))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSettings(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetChatSettings", 2).Return(database.ChatSettings{
		AccountId: 2, NotificationsEnabled: true, SoundEnabled: true, ShowOnlineStatus: true,
		LastSeen: map[string]time.Time{"abc123": time.Now().UTC()},
	}, nil)
	db.On("UpdateChatSettings", database.UpdateChatSettingsParams{
		AccountId: 2, NotificationsEnabled: true, SoundEnabled: false, ShowOnlineStatus: true,
	}).Return(database.ChatSettings{
		AccountId: 2, NotificationsEnabled: true, SoundEnabled: false, ShowOnlineStatus: true,
	}, nil)

	s := newTestApp(t, db)

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.settings(w, authedRequest(http.MethodGet, "/api/settings", nil, 2))

		require.Equal(t, http.StatusOK, w.Code)
		cs := decodeBody[types.ChatSettings](t, w)
		assert.True(t, cs.NotificationsEnabled)
		assert.Contains(t, cs.LastSeen, "abc123")
	})

	t.Run("update", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.settings(w, authedRequest(http.MethodPut, "/api/settings",
			strings.NewReader(`{"notifications_enabled":true,"sound_enabled":false,"show_online_status":true}`), 2))

		require.Equal(t, http.StatusOK, w.Code)
		cs := decodeBody[types.ChatSettings](t, w)
		assert.False(t, cs.SoundEnabled)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.settings(w, authedRequest(http.MethodDelete, "/api/settings", nil, 2))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
