package profile

import (
	"github.com/janisto/profile-sync/internal/platform/timeutil"
)

// Preferences holds the notification toggles.
type Preferences struct {
	EmailNotifications bool `json:"emailNotifications" doc:"Email notifications enabled" example:"true"`
	PushNotifications  bool `json:"pushNotifications"  doc:"Push notifications enabled"  example:"true"`
}

// Profile represents the synchronized profile response.
type Profile struct {
	ID             string        `json:"id"             doc:"Profile identifier"                    example:"1"`
	Name           string        `json:"name"           doc:"Display name"                          example:"John Doe"`
	Email          string        `json:"email"          doc:"Email address"                         example:"john@example.com"`
	Bio            string        `json:"bio"            doc:"Short biography"                       example:"Software Developer"`
	ProfilePicture string        `json:"profilePicture" doc:"Profile picture URI"                   example:"https://i.pravatar.cc/150?img=12"`
	Birthday       string        `json:"birthday"       doc:"Birthday (RFC 3339, UTC)"              example:"1995-06-15T00:00:00Z"`
	Preferences    Preferences   `json:"preferences"`
	SyncedAt       timeutil.Time `json:"syncedAt"       doc:"When the local copy was last replaced" example:"2024-01-15T10:30:00.000Z"`
}

// ProgressEvent is streamed while a picture upload advances.
type ProgressEvent struct {
	Progress int `json:"progress" minimum:"0" maximum:"100" doc:"Upload progress in percent" example:"40"`
}

// CompleteEvent is streamed once the upload finished.
type CompleteEvent struct {
	URI     string   `json:"uri"               doc:"Stored picture URI" example:"file://avatar.jpg"`
	Profile *Profile `json:"profile,omitempty" doc:"Profile after the picture was merged, absent when no profile is loaded"`
}

// ErrorEvent is streamed when the upload could not run.
type ErrorEvent struct {
	Status int    `json:"status" doc:"HTTP status equivalent" example:"409"`
	Detail string `json:"detail" doc:"Error description"      example:"operation already in progress"`
}
