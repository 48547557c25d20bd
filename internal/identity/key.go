package identity

import (
	"errors"
	"strings"
)

// ErrInvalidIdentity is returned for an email that cannot produce a record key.
var ErrInvalidIdentity = errors.New("invalid identity")

var keyReplacer = strings.NewReplacer("@", "_", ".", "_")

// User is an authenticated principal as reported by the identity provider.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Key derives the storage key for u.
func (u User) Key() (string, error) {
	return Key(u.Email)
}

// Key maps an email to a storage-safe record key by replacing every '@' and '.'
// with '_'. Case and whitespace are kept as given, so "A@b.com" and "a@b.com"
// map to different keys.
func Key(email string) (string, error) {
	if email == "" {
		return "", ErrInvalidIdentity
	}
	return keyReplacer.Replace(email), nil
}
