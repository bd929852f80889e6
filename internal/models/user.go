package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is a chat identity. Rooms and Friends are unordered sets stored as text arrays;
// room membership is one-directional, friendship is kept symmetric by the callers.
type User struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"type:text" json:"username"`
	Avatar    string         `gorm:"type:text" json:"avatar"`
	Rooms     pq.StringArray `gorm:"type:text[]" json:"rooms"`
	Friends   pq.StringArray `gorm:"type:text[]" json:"friends"`
	IsBanned  bool           `gorm:"not null;default:false" json:"isBanned"`
	IsOnline  bool           `gorm:"not null;default:false" json:"isOnline"`
	LastSeen  int64          `json:"lastSeen"` // epoch ms
	CreatedAt time.Time      `json:"-"`
}

// BeforeCreate generates a UUID when the caller did not assign an id.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// InRoom reports whether roomID is in the user's room set.
func (u *User) InRoom(roomID string) bool {
	return slices.Contains(u.Rooms, roomID)
}

// HasFriend reports whether friendID is in the user's friend set.
func (u *User) HasFriend(friendID string) bool {
	return slices.Contains(u.Friends, friendID)
}
