package chathub_test

import (
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage for failure paths a real database
// cannot easily produce.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SetOnline(ctx context.Context, id string, online bool) error {
	return m.Called(ctx, id, online).Error(0)
}

func (m *MockStorage) UpdateLastSeen(ctx context.Context, id string, at int64) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockStorage) AddRoom(ctx context.Context, userID, roomID string) error {
	return m.Called(ctx, userID, roomID).Error(0)
}

func (m *MockStorage) RemoveRoom(ctx context.Context, userID, roomID string) error {
	return m.Called(ctx, userID, roomID).Error(0)
}

func (m *MockStorage) AddFriend(ctx context.Context, userID, friendID string) error {
	return m.Called(ctx, userID, friendID).Error(0)
}

func (m *MockStorage) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return m.Called(ctx, userID, friendID).Error(0)
}

func (m *MockStorage) SetFriendship(ctx context.Context, userID, friendID string, linked bool) error {
	return m.Called(ctx, userID, friendID, linked).Error(0)
}

func (m *MockStorage) SetBanned(ctx context.Context, id string, banned bool) error {
	return m.Called(ctx, id, banned).Error(0)
}

func (m *MockStorage) IsUserBanned(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Message operations
func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) SearchMessages(ctx context.Context, q storage.MessageQuery) ([]models.Message, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
