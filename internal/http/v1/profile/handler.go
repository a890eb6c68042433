package profile

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/janisto/profile-sync/internal/platform/respond"
	"github.com/janisto/profile-sync/internal/platform/timeutil"
	"github.com/janisto/profile-sync/internal/profilesync"
	profilesvc "github.com/janisto/profile-sync/internal/service/profile"
	"github.com/janisto/profile-sync/internal/store"
)

// Register registers profile endpoints.
func Register(api huma.API, flow *profilesync.Flow, st *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "Get profile",
		Description: "Loads the profile from the profile service on first use and returns the local copy afterwards.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileGetInput) (*ProfileGetOutput, error) {
		if _, err := flow.Load(ctx); err != nil {
			return nil, mapServiceError(err)
		}
		snap, err := loadedSnapshot(st)
		if err != nil {
			return nil, mapServiceError(err)
		}
		etag := entityTag(snap.Revision)
		if matchesETag(input.IfNoneMatch, etag) {
			return nil, respond.Status304NotModified()
		}
		return &ProfileGetOutput{
			ETag: etag,
			Body: toHTTPProfile(snap),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profile",
		Summary:     "Update profile",
		Description: "Saves edited profile fields. The local copy is replaced only after the profile service accepts the change.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileUpdateInput) (*ProfileUpdateOutput, error) {
		b := input.Body
		draft := profilesync.Draft{
			Name:     b.Name,
			Email:    b.Email,
			Bio:      b.Bio,
			Birthday: b.Birthday,
		}
		if draft.Empty() {
			return nil, huma.Error422UnprocessableEntity("at least one field must be provided")
		}

		if _, err := flow.Save(ctx, draft); err != nil {
			return nil, mapServiceError(err)
		}
		return updateOutput(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-preferences",
		Method:      http.MethodPatch,
		Path:        "/profile/preferences",
		Summary:     "Update notification preferences",
		Description: "Toggles notification preferences. Omitted toggles keep their current value.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *PreferencesUpdateInput) (*ProfileUpdateOutput, error) {
		b := input.Body
		if b.EmailNotifications == nil && b.PushNotifications == nil {
			return nil, huma.Error422UnprocessableEntity("at least one preference must be provided")
		}

		current, ok := st.Profile()
		if !ok || !flow.Loaded() {
			return nil, mapServiceError(profilesync.ErrNotLoaded)
		}
		prefs := profilesvc.Preferences{
			EmailNotifications: current.Preferences.EmailNotifications,
			PushNotifications:  current.Preferences.PushNotifications,
		}
		if b.EmailNotifications != nil {
			prefs.EmailNotifications = *b.EmailNotifications
		}
		if b.PushNotifications != nil {
			prefs.PushNotifications = *b.PushNotifications
		}

		if _, err := flow.UpdatePreferences(ctx, prefs); err != nil {
			return nil, mapServiceError(err)
		}
		return updateOutput(st), nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "upload-profile-picture",
		Method:      http.MethodPost,
		Path:        "/profile/picture",
		Summary:     "Upload profile picture",
		Description: "Uploads a picture and streams progress events. A final complete event carries the stored URI.",
		Tags:        []string{"Profile"},
	}, map[string]any{
		"progress": ProgressEvent{},
		"complete": CompleteEvent{},
		"error":    ErrorEvent{},
	}, func(ctx context.Context, input *PictureUploadInput, send sse.Sender) {
		uri, err := flow.UploadPicture(ctx, input.Body.URI, func(pct int) {
			_ = send.Data(ProgressEvent{Progress: pct})
		})
		if err != nil {
			_ = send.Data(toErrorEvent(err))
			return
		}

		event := CompleteEvent{URI: uri}
		if snap := st.Snapshot(); snap.Present {
			p := toHTTPProfile(snap)
			event.Profile = &p
		}
		_ = send.Data(event)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodDelete,
		Path:          "/profile/session",
		Summary:       "Log out",
		Description:   "Clears the local profile. The next read fetches it from the profile service again.",
		Tags:          []string{"Profile"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *LogoutInput) (*struct{}, error) {
		flow.Logout(ctx)
		return nil, nil
	})
}

// loadedSnapshot reads the store after a successful load. An absent profile
// means Logout ran in between.
func loadedSnapshot(st *store.Store) (store.Snapshot, error) {
	snap := st.Snapshot()
	if !snap.Present {
		return store.Snapshot{}, profilesync.ErrSessionEnded
	}
	return snap, nil
}

func updateOutput(st *store.Store) *ProfileUpdateOutput {
	snap := st.Snapshot()
	return &ProfileUpdateOutput{
		ETag: entityTag(snap.Revision),
		Body: toHTTPProfile(snap),
	}
}

func mapServiceError(err error) huma.StatusError {
	switch {
	case errors.Is(err, profilesvc.ErrUpdateFailed):
		return huma.Error503ServiceUnavailable(profilesvc.ErrUpdateFailed.Error())
	case errors.Is(err, profilesync.ErrNoChanges):
		return huma.Error422UnprocessableEntity("no changes to save")
	case errors.Is(err, profilesync.ErrBusy):
		return huma.Error409Conflict("another update is in progress")
	case errors.Is(err, profilesync.ErrNotLoaded):
		return huma.Error409Conflict("profile not loaded")
	case errors.Is(err, profilesync.ErrSessionEnded):
		return huma.Error409Conflict("session ended before the update completed")
	case errors.Is(err, store.ErrInvalidBirthday):
		return huma.Error500InternalServerError("stored profile is invalid")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}

func toErrorEvent(err error) ErrorEvent {
	se := mapServiceError(err)
	return ErrorEvent{Status: se.GetStatus(), Detail: se.Error()}
}

func toHTTPProfile(snap store.Snapshot) Profile {
	p := snap.Profile
	return Profile{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Bio:            p.Bio,
		ProfilePicture: p.ProfilePicture,
		Birthday:       p.Birthday,
		Preferences: Preferences{
			EmailNotifications: p.Preferences.EmailNotifications,
			PushNotifications:  p.Preferences.PushNotifications,
		},
		SyncedAt: timeutil.NewTime(snap.UpdatedAt),
	}
}

func entityTag(revision uint64) string {
	return `"` + strconv.FormatUint(revision, 10) + `"`
}

// matchesETag implements the weak comparison used by If-None-Match.
func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
