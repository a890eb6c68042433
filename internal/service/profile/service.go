package profile

import (
	"context"
	"errors"
	"time"
)

// Service errors
var (
	ErrUpdateFailed = errors.New("failed to update profile, try again")
)

// Preferences holds the notification toggles shown on the notifications screen.
type Preferences struct {
	EmailNotifications bool
	PushNotifications  bool
}

// Record is the canonical service-side profile.
type Record struct {
	ID             string
	Name           string
	Email          string
	Bio            string
	ProfilePicture string
	Birthday       time.Time
	Preferences    Preferences
}

// UpdateParams for a partial update. Nil fields are left untouched.
// Preferences is replaced as a whole when set.
type UpdateParams struct {
	Name           *string
	Email          *string
	Bio            *string
	ProfilePicture *string
	Birthday       *time.Time
	Preferences    *Preferences
}

// Empty reports whether no field is set.
func (p UpdateParams) Empty() bool {
	return p.Name == nil &&
		p.Email == nil &&
		p.Bio == nil &&
		p.ProfilePicture == nil &&
		p.Birthday == nil &&
		p.Preferences == nil
}

func (p UpdateParams) fieldNames() []string {
	var names []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"name", p.Name != nil},
		{"email", p.Email != nil},
		{"bio", p.Bio != nil},
		{"profilePicture", p.ProfilePicture != nil},
		{"birthday", p.Birthday != nil},
		{"preferences", p.Preferences != nil},
	} {
		if f.set {
			names = append(names, f.name)
		}
	}
	return names
}

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(pct int)

// Service defines profile backend operations.
//
// Fetch and UploadPicture never fail in the simulated backend; the error
// return exists so other backends can satisfy the interface.
type Service interface {
	Fetch(ctx context.Context) (*Record, error)
	Update(ctx context.Context, params UpdateParams) (*Record, error)
	UploadPicture(ctx context.Context, uri string, onProgress ProgressFunc) (string, error)
}

// SeedRecord returns the record a fresh backend starts with.
func SeedRecord() Record {
	return Record{
		ID:             "1",
		Name:           "John Doe",
		Email:          "john@example.com",
		Bio:            "Software Developer",
		ProfilePicture: "https://i.pravatar.cc/150?img=12",
		Birthday:       time.Date(1995, time.June, 15, 0, 0, 0, 0, time.UTC),
		Preferences: Preferences{
			EmailNotifications: true,
			PushNotifications:  true,
		},
	}
}
