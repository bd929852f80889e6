package storage

import (
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"context"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrMessageNotFound = errors.New("message not found")
)

// Directory resolves identities and mutates their profile, membership and liveness.
type Directory interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetOnline(ctx context.Context, id string, online bool) error
	UpdateLastSeen(ctx context.Context, id string, at int64) error

	AddRoom(ctx context.Context, userID, roomID string) error
	RemoveRoom(ctx context.Context, userID, roomID string) error
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	SetFriendship(ctx context.Context, userID, friendID string, linked bool) error

	SetBanned(ctx context.Context, id string, banned bool) error
	IsUserBanned(ctx context.Context, id string) (bool, error)
}

// MessageLog persists messages and their read flag.
type MessageLog interface {
	SaveMessage(ctx context.Context, msg *models.Message) (string, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	MarkRead(ctx context.Context, id string) error
	SearchMessages(ctx context.Context, q MessageQuery) ([]models.Message, error)
}

// Storage is everything the chat engine and the HTTP surface need from persistence.
type Storage interface {
	Directory
	MessageLog
}

// MessageQuery selects one conversation direction, oldest first.
type MessageQuery struct {
	Context models.MessageContext
	From    string
	To      string
	Offset  int
	Limit   int
}

// Service implements Storage over gorm; ban flags are mirrored into Redis for the hot path.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor. rdb may be nil (admin CLI, tests); ban flags then live only in the DB.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the tables.
func (s *Service) Migrate() error {
	return errors.Wrap(s.DB.AutoMigrate(&models.User{}, &models.Message{}), "auto-migrate")
}

func banKey(id string) string { return "ban:" + id }

// CreateUser inserts the user unless the id is taken. On conflict the stored record is returned
// together with ErrUserExists; the stored record is never overwritten.
func (s *Service) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.LastSeen == 0 {
		user.LastSeen = time.Now().UnixMilli()
	}
	if user.Rooms == nil {
		user.Rooms = pq.StringArray{}
	}
	if user.Friends == nil {
		user.Friends = pq.StringArray{}
	}

	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return nil, errors.Wrapf(result.Error, "create user %s", user.ID)
	}
	if result.RowsAffected == 0 {
		existing, err := s.GetUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return existing, ErrUserExists
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get user %s", id)
	}
	return &user, nil
}

func (s *Service) updateUser(ctx context.Context, id string, values map[string]interface{}) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update user %s", id)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) SetOnline(ctx context.Context, id string, online bool) error {
	return s.updateUser(ctx, id, map[string]interface{}{"is_online": online})
}

func (s *Service) UpdateLastSeen(ctx context.Context, id string, at int64) error {
	return s.updateUser(ctx, id, map[string]interface{}{"last_seen": at})
}

// mutateSet rewrites one array column of one user inside a transaction.
func (s *Service) mutateSet(ctx context.Context, userID, column string, fn func(pq.StringArray) (pq.StringArray, bool)) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return mutateSetTx(tx, userID, column, fn)
	})
}

func mutateSetTx(tx *gorm.DB, userID, column string, fn func(pq.StringArray) (pq.StringArray, bool)) error {
	var user models.User
	err := tx.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "load user %s", userID)
	}

	current := user.Rooms
	if column == "friends" {
		current = user.Friends
	}
	next, changed := fn(current)
	if !changed {
		return nil
	}
	if next == nil {
		next = pq.StringArray{}
	}
	err = tx.Model(&models.User{}).Where("id = ?", userID).Update(column, next).Error
	return errors.Wrapf(err, "update %s of %s", column, userID)
}

func addItem(item string) func(pq.StringArray) (pq.StringArray, bool) {
	return func(set pq.StringArray) (pq.StringArray, bool) {
		if slices.Contains(set, item) {
			return set, false
		}
		return append(set, item), true
	}
}

func removeItem(item string) func(pq.StringArray) (pq.StringArray, bool) {
	return func(set pq.StringArray) (pq.StringArray, bool) {
		if !slices.Contains(set, item) {
			return set, false
		}
		return slices.DeleteFunc(slices.Clone(set), func(v string) bool { return v == item }), true
	}
}

func (s *Service) AddRoom(ctx context.Context, userID, roomID string) error {
	return s.mutateSet(ctx, userID, "rooms", addItem(roomID))
}

func (s *Service) RemoveRoom(ctx context.Context, userID, roomID string) error {
	return s.mutateSet(ctx, userID, "rooms", removeItem(roomID))
}

// AddFriend changes only userID's record. SetFriendship writes both edges.
func (s *Service) AddFriend(ctx context.Context, userID, friendID string) error {
	return s.mutateSet(ctx, userID, "friends", addItem(friendID))
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return s.mutateSet(ctx, userID, "friends", removeItem(friendID))
}

// SetFriendship adds or removes the friendship edge on both records in one transaction.
// Either both records change or neither does.
func (s *Service) SetFriendship(ctx context.Context, userID, friendID string, linked bool) error {
	edit := addItem
	if !linked {
		edit = removeItem
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mutateSetTx(tx, userID, "friends", edit(friendID)); err != nil {
			return err
		}
		return mutateSetTx(tx, friendID, "friends", edit(userID))
	})
}

// SetBanned writes the flag to the DB and mirrors it into Redis.
func (s *Service) SetBanned(ctx context.Context, id string, banned bool) error {
	if err := s.updateUser(ctx, id, map[string]interface{}{"is_banned": banned}); err != nil {
		return err
	}
	if s.Redis == nil {
		return nil
	}
	if banned {
		return errors.Wrap(s.Redis.Set(ctx, banKey(id), "active", 0).Err(), "set ban key")
	}
	return errors.Wrap(s.Redis.Del(ctx, banKey(id)).Err(), "delete ban key")
}

// IsUserBanned checks the ban key in Redis.
func (s *Service) IsUserBanned(ctx context.Context, id string) (bool, error) {
	if s.Redis == nil {
		return false, nil
	}
	status, err := s.Redis.Get(ctx, banKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "get ban key")
	}
	return status != "", nil
}

// SaveMessage stores a new message and returns its id.
func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) (string, error) {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return "", errors.Wrapf(err, "save message %s", msg.ID)
	}
	return msg.ID, nil
}

func (s *Service) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get message %s", id)
	}
	return &msg, nil
}

// MarkRead sets is_read. Marking an already read message succeeds without change.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	var count int64
	db := s.DB.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id)
	if err := db.Count(&count).Error; err != nil {
		return errors.Wrapf(err, "count message %s", id)
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	err := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true).Error
	return errors.Wrapf(err, "mark read %s", id)
}

// SearchMessages returns one page of non-deleted messages from From to To, oldest first.
func (s *Service) SearchMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = config.DefaultPageLimit
	}
	if limit > config.MaxPageLimit {
		limit = config.MaxPageLimit
	}
	offset := max(q.Offset, 0)

	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Where("context = ? AND from_id = ? AND to_id = ? AND is_deleted = ?", q.Context, q.From, q.To, false).
		Order("date asc").Order("id asc").
		Offset(offset).Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "search messages")
	}
	return messages, nil
}
