package models

import "github.com/pkg/errors"

// MessageContext says whether a message targets a single user or a room.
type MessageContext string

const (
	ContextDM   MessageContext = "dm"
	ContextRoom MessageContext = "room"
)

// ErrUnknownContext is returned by ParseContext for anything other than dm/room.
var ErrUnknownContext = errors.New("unknown message context")

// ParseContext normalizes a wire context value. "direct" is accepted for dm.
func ParseContext(raw string) (MessageContext, error) {
	switch raw {
	case "dm", "direct":
		return ContextDM, nil
	case "room":
		return ContextRoom, nil
	}
	return "", errors.Wrapf(ErrUnknownContext, "%q", raw)
}

// Channel returns the pub/sub channel a message with this context addressed to target goes to.
func (c MessageContext) Channel(target string) string {
	if c == ContextRoom {
		return RoomChannel(target)
	}
	return UserChannel(target)
}

// UserChannel is the identity channel of a user.
func UserChannel(userID string) string { return "user:" + userID }

// RoomChannel is the channel of a room.
func RoomChannel(roomID string) string { return "room:" + roomID }

// Message is a durable chat message. IsRead is the only field changed after creation.
type Message struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	From      string         `gorm:"column:from_id;type:text;not null;index:idx_msg_lookup" json:"from"`
	To        string         `gorm:"column:to_id;type:text;not null;index:idx_msg_lookup" json:"to"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Date      int64          `gorm:"not null;index" json:"date"` // epoch ms
	Context   MessageContext `gorm:"type:text;not null;index:idx_msg_lookup" json:"context"`
	IsDeleted bool           `gorm:"not null;default:false" json:"isDeleted"`
	IsRead    bool           `gorm:"not null;default:false" json:"isRead"`
}
