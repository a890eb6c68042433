package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/janisto/profile-sync/internal/service/profile"
)

// ErrInvalidBirthday is returned when a stored birthday string cannot be parsed.
var ErrInvalidBirthday = errors.New("invalid birthday")

const dateOnly = "2006-01-02"

// StoredPreferences mirrors profile.Preferences in the stored shape.
type StoredPreferences struct {
	EmailNotifications bool `json:"emailNotifications"`
	PushNotifications  bool `json:"pushNotifications"`
}

// StoredProfile is the serialized profile held by the Store. It differs from
// profile.Record only in that Birthday is a string.
type StoredProfile struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Bio            string            `json:"bio"`
	ProfilePicture string            `json:"profilePicture"`
	Birthday       string            `json:"birthday"`
	Preferences    StoredPreferences `json:"preferences"`
}

// FormatBirthday renders t as RFC 3339 in UTC with as much fractional
// precision as t carries.
func FormatBirthday(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseBirthday accepts RFC 3339 with any offset or a bare calendar date
// (UTC midnight).
func ParseBirthday(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidBirthday)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBirthday, s)
}

// Serialize converts a service record into its stored form.
func Serialize(r profile.Record) StoredProfile {
	return StoredProfile{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Bio:            r.Bio,
		ProfilePicture: r.ProfilePicture,
		Birthday:       FormatBirthday(r.Birthday),
		Preferences: StoredPreferences{
			EmailNotifications: r.Preferences.EmailNotifications,
			PushNotifications:  r.Preferences.PushNotifications,
		},
	}
}

// Deserialize converts a stored profile back into a service record.
func Deserialize(p StoredProfile) (profile.Record, error) {
	birthday, err := ParseBirthday(p.Birthday)
	if err != nil {
		return profile.Record{}, err
	}
	return profile.Record{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Bio:            p.Bio,
		ProfilePicture: p.ProfilePicture,
		Birthday:       birthday,
		Preferences: profile.Preferences{
			EmailNotifications: p.Preferences.EmailNotifications,
			PushNotifications:  p.Preferences.PushNotifications,
		},
	}, nil
}
