package profilesync

import (
	"time"

	"github.com/janisto/profile-sync/internal/service/profile"
	"github.com/janisto/profile-sync/internal/store"
)

// Draft holds the edit form fields. Nil fields were not submitted.
type Draft struct {
	Name     *string
	Email    *string
	Bio      *string
	Birthday *time.Time
}

// Changes reports whether any submitted field differs from current.
func (d Draft) Changes(current store.StoredProfile) bool {
	if d.Name != nil && *d.Name != current.Name {
		return true
	}
	if d.Email != nil && *d.Email != current.Email {
		return true
	}
	if d.Bio != nil && *d.Bio != current.Bio {
		return true
	}
	if d.Birthday != nil {
		stored, err := store.ParseBirthday(current.Birthday)
		if err != nil || !stored.Equal(*d.Birthday) {
			return true
		}
	}
	return false
}

// Empty reports whether no field was submitted.
func (d Draft) Empty() bool {
	return d.params().Empty()
}

func (d Draft) params() profile.UpdateParams {
	return profile.UpdateParams{
		Name:     d.Name,
		Email:    d.Email,
		Bio:      d.Bio,
		Birthday: d.Birthday,
	}
}
