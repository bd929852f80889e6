package storage_test

import (
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestService opens a private in-memory SQLite database per test.
func newTestService(t *testing.T) *storage.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := storage.NewStorageService(db, nil)
	require.NoError(t, s.Migrate())
	return s
}

func seedUser(t *testing.T, s *storage.Service, id string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &models.User{ID: id, Username: id, Avatar: id + ".png"})
	require.NoError(t, err)
	return u
}

func TestCreateUser_NoOverwrite(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, &models.User{ID: "alice", Username: "Alice", Avatar: "a.png"})
	require.NoError(t, err)
	assert.NotZero(t, created.LastSeen)

	existing, err := s.CreateUser(ctx, &models.User{ID: "alice", Username: "Impostor"})
	assert.ErrorIs(t, err, storage.ErrUserExists)
	require.NotNil(t, existing)
	assert.Equal(t, "Alice", existing.Username)

	stored, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Username)
	assert.Equal(t, "a.png", stored.Avatar)
	assert.Empty(t, stored.Rooms)
	assert.Empty(t, stored.Friends)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestService(t)

	_, err := s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestRoomMembership(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	require.NoError(t, s.AddRoom(ctx, "alice", "R1"))
	require.NoError(t, s.AddRoom(ctx, "alice", "R2"))
	require.NoError(t, s.AddRoom(ctx, "alice", "R1"), "adding twice is a no-op")

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"R1", "R2"}, u.Rooms)

	require.NoError(t, s.RemoveRoom(ctx, "alice", "R1"))
	require.NoError(t, s.RemoveRoom(ctx, "alice", "R9"), "removing an absent room is a no-op")

	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"R2"}, u.Rooms)

	assert.ErrorIs(t, s.AddRoom(ctx, "ghost", "R1"), storage.ErrUserNotFound)
}

func TestFriendship_IsPerRecord(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")

	require.NoError(t, s.AddFriend(ctx, "alice", "bob"))

	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")
	assert.True(t, alice.HasFriend("bob"))
	assert.False(t, bob.HasFriend("alice"), "the reverse edge is the caller's job")

	require.NoError(t, s.RemoveFriend(ctx, "alice", "bob"))
	alice, _ = s.GetUser(ctx, "alice")
	assert.False(t, alice.HasFriend("bob"))
}

func TestSetFriendship_BothEdgesOrNone(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")

	require.NoError(t, s.SetFriendship(ctx, "alice", "bob", true))
	require.NoError(t, s.SetFriendship(ctx, "alice", "bob", true), "linking twice is a no-op")
	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")
	assert.Equal(t, []string{"bob"}, []string(alice.Friends))
	assert.Equal(t, []string{"alice"}, []string(bob.Friends))

	// The first edge is written before the second record turns out to be missing.
	assert.ErrorIs(t, s.SetFriendship(ctx, "alice", "ghost", true), storage.ErrUserNotFound)
	alice, _ = s.GetUser(ctx, "alice")
	assert.False(t, alice.HasFriend("ghost"), "failed link is rolled back")

	require.NoError(t, s.SetFriendship(ctx, "bob", "alice", false))
	alice, _ = s.GetUser(ctx, "alice")
	bob, _ = s.GetUser(ctx, "bob")
	assert.Empty(t, alice.Friends)
	assert.Empty(t, bob.Friends)
}

func TestLivenessFields(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	require.NoError(t, s.SetOnline(ctx, "alice", true))
	require.NoError(t, s.UpdateLastSeen(ctx, "alice", 42))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.Equal(t, int64(42), u.LastSeen)

	assert.ErrorIs(t, s.SetOnline(ctx, "ghost", true), storage.ErrUserNotFound)
}

func TestSetBanned_WithoutRedis(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	require.NoError(t, s.SetBanned(ctx, "alice", true))
	u, _ := s.GetUser(ctx, "alice")
	assert.True(t, u.IsBanned)

	banned, err := s.IsUserBanned(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, banned, "without Redis only the column carries the flag")
}

func TestSetBanned_MirrorsToRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	s := newTestService(t)
	s.Redis = client
	seedUser(t, s, "mallory")
	defer client.Del(ctx, "ban:mallory")

	require.NoError(t, s.SetBanned(ctx, "mallory", true))
	banned, err := s.IsUserBanned(ctx, "mallory")
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, s.SetBanned(ctx, "mallory", false))
	banned, err = s.IsUserBanned(ctx, "mallory")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestSaveAndMarkRead_Idempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	msg := &models.Message{ID: "m1", From: "alice", To: "bob", Content: "hi", Date: 1, Context: models.ContextDM}
	id, err := s.SaveMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	stored, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
	assert.False(t, stored.IsDeleted)

	require.NoError(t, s.MarkRead(ctx, "m1"))
	first, _ := s.GetMessage(ctx, "m1")
	require.NoError(t, s.MarkRead(ctx, "m1"))
	second, _ := s.GetMessage(ctx, "m1")

	assert.True(t, first.IsRead)
	assert.Equal(t, first, second)

	assert.ErrorIs(t, s.MarkRead(ctx, "missing"), storage.ErrMessageNotFound)
	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestSaveMessage_DuplicateID(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	msg := models.Message{ID: "m1", From: "alice", To: "bob", Content: "hi", Date: 1, Context: models.ContextDM}
	_, err := s.SaveMessage(ctx, &msg)
	require.NoError(t, err)

	dup := msg
	_, err = s.SaveMessage(ctx, &dup)
	assert.Error(t, err)
}

func TestSearchMessages(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	save := func(id string, date int64, ctxTag models.MessageContext, from, to string, deleted bool) {
		_, err := s.SaveMessage(ctx, &models.Message{
			ID: id, From: from, To: to, Content: id, Date: date, Context: ctxTag, IsDeleted: deleted,
		})
		require.NoError(t, err)
	}
	save("m3", 30, models.ContextDM, "alice", "bob", false)
	save("m1", 10, models.ContextDM, "alice", "bob", false)
	save("m2", 20, models.ContextDM, "alice", "bob", false)
	save("m4", 40, models.ContextDM, "alice", "bob", true)
	save("x1", 15, models.ContextDM, "bob", "alice", false)
	save("r1", 15, models.ContextRoom, "alice", "bob", false)

	all, err := s.SearchMessages(ctx, storage.MessageQuery{Context: models.ContextDM, From: "alice", To: "bob"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	page, err := s.SearchMessages(ctx, storage.MessageQuery{Context: models.ContextDM, From: "alice", To: "bob", Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m2", page[0].ID)

	none, err := s.SearchMessages(ctx, storage.MessageQuery{Context: models.ContextRoom, From: "bob", To: "R1"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
