package profile

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/janisto/profile-sync/internal/platform/logging"
)

const (
	defaultLatency     = time.Second
	defaultChunkDelay  = 100 * time.Millisecond
	defaultFailureRate = 0.1

	progressStep = 10
	progressMax  = 100

	auditResource = "profile"
)

// categorizeError converts errors to audit-safe categories.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrUpdateFailed):
		return "update_failed"
	default:
		return "internal_error"
	}
}

// MockProfileService simulates a remote profile backend holding a single
// record. Calls sleep for a fixed latency and updates fail at a fixed rate.
type MockProfileService struct {
	mu     sync.RWMutex
	record Record
	seed   Record

	latency     time.Duration
	chunkDelay  time.Duration
	failureRate float64
	random      func() float64
}

// Option configures a MockProfileService.
type Option func(*MockProfileService)

// WithLatency sets the delay applied to Fetch and Update.
func WithLatency(d time.Duration) Option {
	return func(m *MockProfileService) {
		m.latency = d
	}
}

// WithChunkDelay sets the delay before each upload progress tick.
func WithChunkDelay(d time.Duration) Option {
	return func(m *MockProfileService) {
		m.chunkDelay = d
	}
}

// WithFailureRate sets the probability that Update fails. Values are clamped to [0, 1].
func WithFailureRate(rate float64) Option {
	return func(m *MockProfileService) {
		m.failureRate = min(max(rate, 0), 1)
	}
}

// WithRandom replaces the random source used to decide Update failures.
// fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(m *MockProfileService) {
		if fn != nil {
			m.random = fn
		}
	}
}

// WithSeed replaces the initial record.
func WithSeed(r Record) Option {
	return func(m *MockProfileService) {
		m.seed = r
	}
}

// NewMockProfileService creates a simulated backend seeded with SeedRecord.
func NewMockProfileService(opts ...Option) *MockProfileService {
	m := &MockProfileService{
		seed:        SeedRecord(),
		latency:     defaultLatency,
		chunkDelay:  defaultChunkDelay,
		failureRate: defaultFailureRate,
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.record = m.seed
	return m
}

// Fetch returns a copy of the current record after the simulated latency.
func (m *MockProfileService) Fetch(ctx context.Context) (*Record, error) {
	m.wait(m.latency)

	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.record
	return &r, nil
}

// Update merges params into the record after the simulated latency.
// Concurrent updates are last-writer-wins.
func (m *MockProfileService) Update(ctx context.Context, params UpdateParams) (*Record, error) {
	m.wait(m.latency)

	if m.random() >= 1-m.failureRate {
		applog.LogAudit(ctx, applog.AuditEvent{
			Action:     "update",
			Resource:   auditResource,
			ResourceID: m.recordID(),
			Result:     applog.AuditFailure,
			Fields:     params.fieldNames(),
			Details:    map[string]any{"error": categorizeError(ErrUpdateFailed)},
		})
		return nil, ErrUpdateFailed
	}

	m.mu.Lock()
	if params.Name != nil {
		m.record.Name = *params.Name
	}
	if params.Email != nil {
		m.record.Email = *params.Email
	}
	if params.Bio != nil {
		m.record.Bio = *params.Bio
	}
	if params.ProfilePicture != nil {
		m.record.ProfilePicture = *params.ProfilePicture
	}
	if params.Birthday != nil {
		m.record.Birthday = *params.Birthday
	}
	if params.Preferences != nil {
		m.record.Preferences = *params.Preferences
	}
	result := m.record
	m.mu.Unlock()

	applog.LogAudit(ctx, applog.AuditEvent{
		Action:     "update",
		Resource:   auditResource,
		ResourceID: result.ID,
		Result:     applog.AuditSuccess,
		Fields:     params.fieldNames(),
	})

	return &result, nil
}

// UploadPicture simulates a chunked upload, reporting 10, 20, ..., 100 to
// onProgress, then stores uri as the profile picture.
func (m *MockProfileService) UploadPicture(ctx context.Context, uri string, onProgress ProgressFunc) (string, error) {
	for pct := progressStep; pct <= progressMax; pct += progressStep {
		m.wait(m.chunkDelay)
		if onProgress != nil {
			onProgress(pct)
		}
	}

	m.mu.Lock()
	m.record.ProfilePicture = uri
	id := m.record.ID
	m.mu.Unlock()

	applog.LogAudit(ctx, applog.AuditEvent{
		Action:     "upload_picture",
		Resource:   auditResource,
		ResourceID: id,
		Result:     applog.AuditSuccess,
		Fields:     []string{"profilePicture"},
	})
	applog.LogInfo(ctx, "profile picture uploaded", zap.String("uri", uri))

	return uri, nil
}

// Reset restores the seed record (useful for test cleanup).
func (m *MockProfileService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = m.seed
}

func (m *MockProfileService) recordID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.ID
}

func (m *MockProfileService) wait(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Compile-time interface check
var _ Service = (*MockProfileService)(nil)
