package chathub

import (
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Verifier turns a credential into an identity id.
type Verifier interface {
	Verify(token string) (string, error)
}

// UserLookup resolves an identity id to its user record.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Admission validates upgrade requests before any session exists.
type Admission struct {
	verifier Verifier
	users    UserLookup
}

func NewAdmission(v Verifier, users UserLookup) *Admission {
	return &Admission{verifier: v, users: users}
}

// Admit reads ?auth= (and the optional ?rooms=) from r and returns the identity to bind.
// A rooms parameter, when present, replaces the stored room set as the subscription snapshot.
func (a *Admission) Admit(ctx context.Context, r *http.Request) (*Identity, error) {
	query := r.URL.Query()

	token := query.Get("auth")
	if token == "" {
		return nil, ErrMissingCredential
	}

	userID, err := a.verifier.Verify(token)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCredential, err.Error())
	}

	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrUnknownIdentity
	}
	if err != nil {
		return nil, errors.Wrap(err, "load identity")
	}

	rooms := []string(user.Rooms)
	if query.Has("rooms") {
		rooms = splitRooms(query.Get("rooms"))
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Avatar:   user.Avatar,
		Rooms:    rooms,
	}, nil
}

func splitRooms(raw string) []string {
	seen := make(map[string]bool)
	rooms := []string{}
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rooms = append(rooms, r)
	}
	return rooms
}

// IsAdmissionError reports whether err should be answered with 401.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrUnknownIdentity)
}
