package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/classchat/internal/database"
	"github.com/coursehub/classchat/internal/stats"
	"github.com/coursehub/classchat/internal/types"
)

func TestNewChatServer(t *testing.T) {
	db := &database.MockClassChatRepository{}
	su := newMockStats()

	cs := newTestChatServer(t, db, su)

	assert.NotNil(t, cs.joinChan)
	assert.NotNil(t, cs.unloadRoomChan)
	assert.Empty(t, cs.rooms)
	assert.Empty(t, cs.clients)
	su.AssertExpectations(t)
}

func TestChatServerJoin(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "math-101").Return(database.Room{Id: 1, ExternalId: "math-101", IsActive: true}, nil).Once()
	db.On("AuthorizeMember", 1, 1).Return(true, nil)
	db.On("AuthorizeMember", 3, 1).Return(false, nil)
	su := newMockStats()
	su.On("Incr", stats.ActiveRooms).Once()
	su.On("Decr", stats.ActiveRooms).Once()

	cs := newTestChatServer(t, db, su)
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	alice := newTestClient(cs, types.User{Id: 1, Username: "alice"})
	require.NoError(t, cs.Join(ctx, alice))
	require.NotNil(t, alice.getRoom())
	assert.Equal(t, "math-101", alice.getRoom().externalId)

	// the room is loaded once; a second join reuses it
	mallory := newTestClient(cs, types.User{Id: 3, Username: "mallory"})
	assert.ErrorIs(t, cs.Join(ctx, mallory), ErrAccessDenied)

	require.NoError(t, cs.Shutdown(ctx))
	db.AssertExpectations(t)
}

func TestChatServerJoinRoomNotFound(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows)
	su := newMockStats()

	cs := newTestChatServer(t, db, su)
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c := newTestClient(cs, types.User{Id: 1, Username: "alice"})
	c.roomId = "nope"
	assert.ErrorIs(t, cs.Join(ctx, c), ErrRoomNotFound)

	require.NoError(t, cs.Shutdown(ctx))
}

func TestChatServerJoinInactiveRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "math-101").Return(database.Room{Id: 1, ExternalId: "math-101", IsActive: false}, nil)
	su := newMockStats()

	cs := newTestChatServer(t, db, su)
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c := newTestClient(cs, types.User{Id: 1, Username: "alice"})
	assert.ErrorIs(t, cs.Join(ctx, c), ErrRoomNotFound)

	require.NoError(t, cs.Shutdown(ctx))
}

func TestChatServerUnloadRoom(t *testing.T) {
	db := &database.MockClassChatRepository{}
	db.On("GetRoomByExternalId", "math-101").Return(database.Room{Id: 1, ExternalId: "math-101", IsActive: true}, nil)
	db.On("AuthorizeMember", 1, 1).Return(true, nil)
	su := newMockStats()
	su.On("Incr", stats.ActiveRooms).Once()
	su.On("Decr", stats.ActiveRooms).Once()

	cs := newTestChatServer(t, db, su)
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	alice := newTestClient(cs, types.User{Id: 1, Username: "alice"})
	require.NoError(t, cs.Join(ctx, alice))

	require.NoError(t, cs.UnloadRoom(ctx, "math-101", true))

	assert.Nil(t, alice.getRoom())
	select {
	case <-alice.stop:
	default:
		t.Fatal("expected session to be kicked when its room is deleted")
	}

	// unloading an unknown room is a no-op
	require.NoError(t, cs.UnloadRoom(ctx, "math-101", false))

	require.NoError(t, cs.Shutdown(ctx))
	su.AssertExpectations(t)
}

func TestRegisterAndDeregisterClient(t *testing.T) {
	db := &database.MockClassChatRepository{}
	su := newMockStats()
	su.On("Incr", stats.ActiveConnections).Once()
	su.On("Decr", stats.ActiveConnections).Once()

	cs := newTestChatServer(t, db, su)

	c := newTestClient(cs, types.User{Id: 1, Username: "alice"})
	cs.RegisterClient(c)
	assert.Contains(t, cs.clients, c)

	cs.DeregisterClient(c)
	assert.NotContains(t, cs.clients, c)

	// deregistering an unknown client does not touch the counters
	cs.DeregisterClient(c)
	su.AssertExpectations(t)
}
