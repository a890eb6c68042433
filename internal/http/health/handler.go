package health

import (
	"encoding/json"
	"net/http"

	"github.com/janisto/profile-sync/internal/store"
)

// Response is the payload for the health endpoint.
type Response struct {
	Status        string `json:"status"`
	ProfileLoaded bool   `json:"profileLoaded"`
	StoreRevision uint64 `json:"storeRevision"`
}

// Snapshotter exposes the profile store state.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// Handler returns a plain HTTP handler for the health check endpoint. It
// always reports healthy and includes the profile store state.
func Handler(st Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := st.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{
			Status:        "healthy",
			ProfileLoaded: snap.Present,
			StoreRevision: snap.Revision,
		})
	}
}
