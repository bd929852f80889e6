package chathub_test

import (
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv is one node: real storage on in-memory SQLite and a synchronous local broker.
type testEnv struct {
	store    *storage.Service
	broker   *chathub.LocalBroker
	registry *chathub.Registry
	router   *chathub.Router
}

func newTestStore(t *testing.T) *storage.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, newTestStore(t))
}

// newTestEnvWith wires a registry and router over store. The local broker listens until the
// test ends.
func newTestEnvWith(t *testing.T, store storage.Storage) *testEnv {
	t.Helper()

	broker := chathub.NewLocalBroker()
	pub := chathub.NewPublisher(broker)
	log := zap.NewNop()
	env := &testEnv{
		broker:   broker,
		registry: chathub.NewRegistry(pub, store, log),
		router:   chathub.NewRouter(store, pub, log),
	}
	if svc, ok := store.(*storage.Service); ok {
		env.store = svc
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, broker.Listen(ctx, env.registry.Deliver))
	return env
}

func (e *testEnv) addUser(t *testing.T, id string, rooms ...string) *models.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), &models.User{ID: id, Username: "name-" + id, Avatar: id + ".png"})
	require.NoError(t, err)
	for _, r := range rooms {
		require.NoError(t, e.store.AddRoom(context.Background(), id, r))
	}
	u, err = e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

// connect opens a session for the stored user with its stored rooms as the snapshot.
func (e *testEnv) connect(t *testing.T, id string) *chathub.Session {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	s := chathub.NewSession(chathub.Identity{
		UserID:   u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Rooms:    u.Rooms,
	}, 0, 0)
	e.registry.Connect(context.Background(), s)
	return s
}

func (e *testEnv) send(t *testing.T, s *chathub.Session, event map[string]any) bool {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return e.router.Dispatch(context.Background(), s, raw)
}

// drain returns every frame queued on s, decoded.
func drain(t *testing.T, s *chathub.Session) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		select {
		case raw := <-s.Mailbox():
			var frame map[string]any
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func framesOfType(frames []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}
