package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/profile-sync/internal/http/v1/profile"
	"github.com/janisto/profile-sync/internal/profilesync"
	"github.com/janisto/profile-sync/internal/store"
)

// Register wires all API operations into the provided API router.
func Register(api huma.API, flow *profilesync.Flow, st *store.Store) {
	profile.Register(api, flow, st)
}
