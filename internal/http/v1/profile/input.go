package profile

import "time"

// ProfileGetInput for GET /profile
type ProfileGetInput struct {
	IfNoneMatch string `header:"If-None-Match" doc:"ETag from a previous response"`
}

// ProfileUpdateInput for PATCH /profile. Rules follow the profile edit form.
type ProfileUpdateInput struct {
	Body struct {
		Name     *string    `json:"name,omitempty"     minLength:"2" maxLength:"50" pattern:"^[A-Za-z\\s]+$" doc:"Display name (letters and spaces)" example:"Jane Doe"`
		Email    *string    `json:"email,omitempty"    format:"email"                                          doc:"Email address"                    example:"jane@example.com"`
		Bio      *string    `json:"bio,omitempty"      maxLength:"200"                                         doc:"Short biography"                  example:"Product Designer"`
		Birthday *time.Time `json:"birthday,omitempty"                                                         doc:"Birthday (RFC 3339)"              example:"1995-06-15T00:00:00Z"`
	}
}

// PreferencesUpdateInput for PATCH /profile/preferences
type PreferencesUpdateInput struct {
	Body struct {
		EmailNotifications *bool `json:"emailNotifications,omitempty" doc:"Email notifications enabled" example:"false"`
		PushNotifications  *bool `json:"pushNotifications,omitempty"  doc:"Push notifications enabled"  example:"true"`
	}
}

// PictureUploadInput for POST /profile/picture
type PictureUploadInput struct {
	Body struct {
		URI string `json:"uri" minLength:"1" maxLength:"2048" required:"true" doc:"Local URI of the picture to upload" example:"file://avatar.jpg"`
	}
}

// LogoutInput for DELETE /profile/session (no body needed)
type LogoutInput struct{}
