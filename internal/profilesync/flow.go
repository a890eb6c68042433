// Package profilesync sequences profile service calls and reconciles their
// results into the profile store.
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	applog "github.com/janisto/profile-sync/internal/platform/logging"
	"github.com/janisto/profile-sync/internal/platform/metrics"
	"github.com/janisto/profile-sync/internal/service/profile"
	"github.com/janisto/profile-sync/internal/store"
)

// Flow errors
var (
	ErrNotLoaded    = errors.New("profile not loaded")
	ErrNoChanges    = errors.New("no changes to save")
	ErrBusy         = errors.New("operation already in progress")
	ErrSessionEnded = errors.New("session ended before the operation completed")
)

const (
	opLoad              = "load"
	opSave              = "save"
	opUpdatePreferences = "update_preferences"
	opUploadPicture     = "upload_picture"
	opLogout            = "logout"
)

// Option configures a Flow.
type Option func(*Flow)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flow) {
		f.metrics = m
	}
}

// Flow owns the session state between the profile service and the store.
type Flow struct {
	svc     profile.Service
	store   *store.Store
	metrics *metrics.Metrics

	loads singleflight.Group

	// mu serializes store commits against Logout. Store listeners run while
	// it is held, so loaded and generation are atomics that readers can use
	// from inside a listener.
	mu         sync.Mutex
	loaded     atomic.Bool
	generation atomic.Uint64

	saving    atomic.Bool
	uploading atomic.Bool
}

// New creates a Flow over svc and st.
func New(svc profile.Service, st *store.Store, opts ...Option) *Flow {
	f := &Flow{svc: svc, store: st}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics != nil {
		m := f.metrics
		st.Subscribe(func(s store.Snapshot) {
			m.SetStoreRevision(s.Revision)
		})
	}
	return f
}

// Loaded reports whether the current session has fetched the profile.
func (f *Flow) Loaded() bool {
	return f.loaded.Load()
}

// Load fetches the profile once per session and stores it. Concurrent first
// calls share one fetch. Later calls return the stored profile.
func (f *Flow) Load(ctx context.Context) (store.StoredProfile, error) {
	start := time.Now()
	ctx = applog.WithFields(ctx, zap.String("operation", opLoad))

	if p, ok := f.current(); ok {
		f.observe(ctx, opLoad, metrics.ResultSkipped, start, nil)
		return p, nil
	}

	v, err, shared := f.loads.Do(opLoad, func() (any, error) {
		if p, ok := f.current(); ok {
			return p, nil
		}

		gen := f.generation.Load()
		rec, err := f.svc.Fetch(ctx)
		if err != nil {
			return store.StoredProfile{}, fmt.Errorf("fetch profile: %w", err)
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.generation.Load() {
			return store.StoredProfile{}, ErrSessionEnded
		}
		f.loaded.Store(true)
		f.store.Set(*rec)
		return store.Serialize(*rec), nil
	})
	if err != nil {
		f.observe(ctx, opLoad, metrics.ResultFailure, start, err)
		return store.StoredProfile{}, err
	}

	p, ok := v.(store.StoredProfile)
	if !ok {
		return store.StoredProfile{}, fmt.Errorf("load returned unexpected type %T", v)
	}
	f.observe(ctx, opLoad, metrics.ResultSuccess, start, nil, zap.Bool("shared", shared))
	return p, nil
}

// Save submits the edited fields. The store is only written after the
// service accepts the update.
func (f *Flow) Save(ctx context.Context, draft Draft) (store.StoredProfile, error) {
	return f.update(ctx, opSave, draft.params(), draft.Changes)
}

// UpdatePreferences replaces the notification preferences.
func (f *Flow) UpdatePreferences(ctx context.Context, prefs profile.Preferences) (store.StoredProfile, error) {
	changed := func(current store.StoredProfile) bool {
		return current.Preferences.EmailNotifications != prefs.EmailNotifications ||
			current.Preferences.PushNotifications != prefs.PushNotifications
	}
	return f.update(ctx, opUpdatePreferences, profile.UpdateParams{Preferences: &prefs}, changed)
}

func (f *Flow) update(
	ctx context.Context,
	op string,
	params profile.UpdateParams,
	changed func(store.StoredProfile) bool,
) (store.StoredProfile, error) {
	start := time.Now()
	ctx = applog.WithFields(ctx, zap.String("operation", op))

	current, ok := f.current()
	if !ok {
		f.observe(ctx, op, metrics.ResultSkipped, start, ErrNotLoaded)
		return store.StoredProfile{}, ErrNotLoaded
	}
	if params.Empty() || !changed(current) {
		f.observe(ctx, op, metrics.ResultSkipped, start, ErrNoChanges)
		return store.StoredProfile{}, ErrNoChanges
	}
	if !f.saving.CompareAndSwap(false, true) {
		f.observe(ctx, op, metrics.ResultSkipped, start, ErrBusy)
		return store.StoredProfile{}, ErrBusy
	}
	defer f.saving.Store(false)

	gen := f.generation.Load()
	rec, err := f.svc.Update(ctx, params)
	if err != nil {
		err = fmt.Errorf("update profile: %w", err)
		f.observe(ctx, op, metrics.ResultFailure, start, err)
		return store.StoredProfile{}, err
	}

	f.mu.Lock()
	if gen != f.generation.Load() {
		f.mu.Unlock()
		f.observe(ctx, op, metrics.ResultFailure, start, ErrSessionEnded)
		return store.StoredProfile{}, ErrSessionEnded
	}
	f.store.Set(*rec)
	f.mu.Unlock()

	f.observe(ctx, op, metrics.ResultSuccess, start, nil)
	return store.Serialize(*rec), nil
}

// UploadPicture uploads uri, forwarding progress ticks to onProgress. On
// completion only ProfilePicture is merged into the stored profile.
func (f *Flow) UploadPicture(ctx context.Context, uri string, onProgress profile.ProgressFunc) (string, error) {
	start := time.Now()
	ctx = applog.WithFields(ctx, zap.String("operation", opUploadPicture))

	if !f.uploading.CompareAndSwap(false, true) {
		f.observe(ctx, opUploadPicture, metrics.ResultSkipped, start, ErrBusy)
		return "", ErrBusy
	}
	defer f.uploading.Store(false)

	gen := f.generation.Load()
	uploaded, err := f.svc.UploadPicture(ctx, uri, func(pct int) {
		f.metrics.SetUploadProgress(pct)
		applog.LogDebug(ctx, "upload progress", zap.Int("progress", pct))
		if onProgress != nil {
			onProgress(pct)
		}
	})
	if err != nil {
		err = fmt.Errorf("upload picture: %w", err)
		f.observe(ctx, opUploadPicture, metrics.ResultFailure, start, err)
		return "", err
	}

	merged, err := f.mergePicture(gen, uploaded)
	if err != nil {
		f.observe(ctx, opUploadPicture, metrics.ResultFailure, start, err)
		return "", err
	}

	// An upload that lands after Logout or before Load still succeeds at the
	// service, but the store is left alone.
	result := metrics.ResultSuccess
	if !merged {
		result = metrics.ResultSkipped
	}
	f.observe(ctx, opUploadPicture, result, start, nil, zap.Bool("merged", merged))
	return uploaded, nil
}

// mergePicture reports whether uri was written to the stored profile.
func (f *Flow) mergePicture(gen uint64, uri string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation.Load() {
		return false, nil
	}
	current, ok := f.store.Profile()
	if !ok {
		return false, nil
	}
	current.ProfilePicture = uri
	if err := f.store.SetStored(current); err != nil {
		return false, fmt.Errorf("store picture: %w", err)
	}
	return true, nil
}

// Logout clears the stored profile and ends the session so the next Load
// fetches again.
func (f *Flow) Logout(ctx context.Context) {
	start := time.Now()
	ctx = applog.WithFields(ctx, zap.String("operation", opLogout))

	f.mu.Lock()
	f.loaded.Store(false)
	f.generation.Add(1)
	f.store.Clear()
	f.mu.Unlock()

	f.observe(ctx, opLogout, metrics.ResultSuccess, start, nil)
}

// current returns the stored profile when the session has loaded it.
func (f *Flow) current() (store.StoredProfile, bool) {
	if !f.loaded.Load() {
		return store.StoredProfile{}, false
	}
	return f.store.Profile()
}

func (f *Flow) observe(ctx context.Context, op, result string, start time.Time, err error, fields ...zap.Field) {
	d := time.Since(start)
	f.metrics.ObserveOperation(op, result, d)

	fields = append(fields, zap.String("result", result), zap.Duration("duration", d))
	switch {
	case err == nil:
		applog.LogInfo(ctx, "profile sync operation completed", fields...)
	case result == metrics.ResultSkipped:
		applog.LogWarn(ctx, "profile sync operation rejected", append(fields, zap.Error(err))...)
	default:
		applog.LogError(ctx, "profile sync operation failed", err, fields...)
	}
}
