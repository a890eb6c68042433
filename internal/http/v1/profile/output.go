package profile

// ProfileGetOutput for GET /profile
type ProfileGetOutput struct {
	ETag string `header:"ETag" doc:"Store revision of the returned profile"`
	Body Profile
}

// ProfileUpdateOutput for PATCH /profile and PATCH /profile/preferences
type ProfileUpdateOutput struct {
	ETag string `header:"ETag" doc:"Store revision after the update"`
	Body Profile
}
