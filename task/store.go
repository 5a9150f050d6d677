package task

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/storage"
)

// AnonymousPrincipal is the reserved owner ID for unauthenticated callers,
// reproduced from the original's DEFAULT_LOCAL_OWNER.
const AnonymousPrincipal = "local"

// StoreConfig bounds variable size/shape and task lifetime. Defaults mirror
// crates/pmcp-tasks/src/store/StoreConfig::default(): 1 MiB variables, 1h
// default TTL, 24h max TTL, depth 10, string length 10000.
type StoreConfig struct {
	MaxVariableSizeBytes int
	MaxVariableDepth     int
	MaxStringLength      int
	DefaultTTLMillis     *int64
	MaxTTLMillis         *int64
}

func int64p(v int64) *int64 { return &v }

// DefaultStoreConfig returns the spec's documented defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxVariableSizeBytes: 1 << 20,
		MaxVariableDepth:     10,
		MaxStringLength:      10_000,
		DefaultTTLMillis:     int64p(time.Hour.Milliseconds()),
		MaxTTLMillis:         int64p((24 * time.Hour).Milliseconds()),
	}
}

// SecurityConfig gates anonymous access and bounds tasks per owner.
type SecurityConfig struct {
	AllowAnonymous   bool
	MaxTasksPerOwner int
}

// DefaultSecurityConfig disallows anonymous access with a generous per-owner
// ceiling, matching TaskSecurityConfig::default() (no anonymous, 100 tasks).
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{AllowAnonymous: false, MaxTasksPerOwner: 100}
}

// ListOptions parameterizes Store.List (spec.md §4.B). Limit is a pointer
// so that an omitted limit (nil, defaults to 50) is distinguishable from an
// explicit zero (returns an empty page), matching ListTasksOptions::limit's
// Option<usize> in generic.rs.
type ListOptions struct {
	OwnerID string
	Cursor  string
	Limit   *int
}

// Page is the cursor-paginated result of Store.List.
type Page struct {
	Tasks      []*Record
	NextCursor string
}

// Store is the Task Store domain layer of spec.md §4.B.
type Store interface {
	Create(ctx context.Context, ownerID, requestMethod string, ttlMillis *int64) (*Record, error)
	Get(ctx context.Context, taskID, ownerID string) (*Record, error)
	UpdateStatus(ctx context.Context, taskID, ownerID string, newStatus Status, message *string) (*Record, error)
	SetVariables(ctx context.Context, taskID, ownerID string, variables map[string]any) (*Record, error)
	SetResult(ctx context.Context, taskID, ownerID string, result any) error
	GetResult(ctx context.Context, taskID, ownerID string) (any, error)
	CompleteWithResult(ctx context.Context, taskID, ownerID string, status Status, message *string, result any) (*Record, error)
	List(ctx context.Context, opts ListOptions) (Page, error)
	Cancel(ctx context.Context, taskID, ownerID string) (*Record, error)
	CleanupExpired(ctx context.Context) (int, error)
}

type store struct {
	backend           storage.Backend
	config            StoreConfig
	security          SecurityConfig
	defaultPollMillis int64
}

// Option configures a Store at construction time, mirroring the original's
// builder methods (with_config/with_security/with_poll_interval).
type Option func(*store)

// WithConfig overrides the default StoreConfig.
func WithConfig(cfg StoreConfig) Option {
	return func(s *store) { s.config = cfg }
}

// WithSecurity overrides the default SecurityConfig.
func WithSecurity(sec SecurityConfig) Option {
	return func(s *store) { s.security = sec }
}

// WithPollInterval overrides the poll interval (ms) stamped onto new tasks.
func WithPollInterval(ms int64) Option {
	return func(s *store) { s.defaultPollMillis = ms }
}

// NewStore constructs a Store over backend with the given options applied
// on top of the documented defaults.
func NewStore(backend storage.Backend, opts ...Option) Store {
	s := &store{
		backend:           backend,
		config:            DefaultStoreConfig(),
		security:          DefaultSecurityConfig(),
		defaultPollMillis: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func isAnonymousOwner(ownerID string) bool {
	return ownerID == "" || ownerID == AnonymousPrincipal
}

func (s *store) checkAnonymousAccess(ownerID string) error {
	if !s.security.AllowAnonymous && isAnonymousOwner(ownerID) {
		return errs.Validation("anonymous access is not allowed; configure OAuth or enable allow_anonymous")
	}
	return nil
}

func serializeRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errs.StoreErrorf("failed to serialize task record: %v", err)
	}
	return data, nil
}

func deserializeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errs.StoreErrorf("failed to deserialize task record: %v", err)
	}
	return &r, nil
}

func (s *store) Create(ctx context.Context, ownerID, requestMethod string, ttlMillis *int64) (*Record, error) {
	if err := s.checkAnonymousAccess(ownerID); err != nil {
		return nil, err
	}

	existing, err := s.backend.ListByPrefix(ctx, MakePrefix(ownerID))
	if err != nil {
		return nil, err
	}
	if len(existing) >= s.security.MaxTasksPerOwner {
		return nil, errs.ResourceExhausted("Cancel or wait for existing tasks to expire")
	}

	if ttlMillis != nil && s.config.MaxTTLMillis != nil && *ttlMillis > *s.config.MaxTTLMillis {
		return nil, errs.StoreErrorf("TTL %dms exceeds maximum allowed %dms", *ttlMillis, *s.config.MaxTTLMillis)
	}

	effectiveTTL := ttlMillis
	if effectiveTTL == nil {
		effectiveTTL = s.config.DefaultTTLMillis
	}

	now := time.Now().UTC()
	record := &Record{
		TaskID:         uuid.NewString(),
		OwnerID:        ownerID,
		RequestMethod:  requestMethod,
		Status:         StatusWorking,
		Variables:      map[string]any{},
		CreatedAt:      now,
		LastUpdatedAt:  now,
		TTLMillis:      effectiveTTL,
		PollIntervalMS: int64p(s.defaultPollMillis),
	}
	if effectiveTTL != nil {
		expires := now.Add(time.Duration(*effectiveTTL) * time.Millisecond)
		record.ExpiresAt = &expires
	}

	data, err := serializeRecord(record)
	if err != nil {
		return nil, err
	}
	version, err := s.backend.Put(ctx, MakeKey(ownerID, record.TaskID), data, record.ExpiresAt)
	if err != nil {
		return nil, err
	}
	record.Version = version
	return record, nil
}

func (s *store) fetch(ctx context.Context, taskID, ownerID string) (*Record, int64, error) {
	entry, err := s.backend.Get(ctx, MakeKey(ownerID, taskID))
	if err != nil {
		return nil, 0, mapNotFound(err, taskID)
	}
	record, err := deserializeRecord(entry.Data)
	if err != nil {
		return nil, 0, err
	}
	record.Version = entry.Version

	// Defense in depth: the key is already owner-scoped, but verify anyway.
	if record.OwnerID != ownerID {
		return nil, 0, errs.NotFound(taskID)
	}
	return record, entry.Version, nil
}

func mapNotFound(err error, taskID string) error {
	if errs.CodeOf(err) == errs.CodeNotFound {
		return errs.NotFound(taskID)
	}
	return err
}

func (s *store) Get(ctx context.Context, taskID, ownerID string) (*Record, error) {
	record, _, err := s.fetch(ctx, taskID, ownerID)
	return record, err
}

func (s *store) UpdateStatus(ctx context.Context, taskID, ownerID string, newStatus Status, message *string) (*Record, error) {
	record, version, err := s.fetch(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.IsExpired() {
		return nil, errs.Expired(taskID, *record.ExpiresAt)
	}
	if !record.Status.CanTransitionTo(newStatus) {
		return nil, errs.InvalidTransition(taskID, string(record.Status), string(newStatus))
	}

	record.Status = newStatus
	record.StatusMessage = message
	record.LastUpdatedAt = time.Now().UTC()

	data, err := serializeRecord(record)
	if err != nil {
		return nil, err
	}
	newVersion, err := s.backend.PutIfVersion(ctx, MakeKey(ownerID, taskID), data, version, record.ExpiresAt)
	if err != nil {
		return nil, remapConflict(err, taskID)
	}
	record.Version = newVersion
	return record, nil
}

func remapConflict(err error, taskID string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Code == errs.CodeConcurrentModification {
		// Already carries key/expected/actual context; add task_id.
		b := errs.New(errs.CodeConcurrentModification).Message(e.Message)
		for k, v := range e.Context {
			b = b.Context(k, v)
		}
		return b.Context("task_id", taskID).Build()
	}
	return err
}

func (s *store) SetVariables(ctx context.Context, taskID, ownerID string, variables map[string]any) (*Record, error) {
	record, version, err := s.fetch(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.IsExpired() {
		return nil, errs.Expired(taskID, *record.ExpiresAt)
	}
	if record.Status.IsTerminal() {
		return nil, errs.InvalidTransition(taskID, string(record.Status), string(record.Status))
	}

	if err := validateVariables(variables, s.config.MaxVariableDepth, s.config.MaxStringLength); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(record.Variables))
	for k, v := range record.Variables {
		merged[k] = v
	}
	for k, v := range variables {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}

	serialized, err := json.Marshal(merged)
	if err != nil {
		return nil, errs.StoreErrorf("failed to serialize variables: %v", err)
	}
	if len(serialized) > s.config.MaxVariableSizeBytes {
		return nil, errs.VariableSizeExceeded(s.config.MaxVariableSizeBytes, len(serialized))
	}

	record.Variables = merged
	record.LastUpdatedAt = time.Now().UTC()

	data, err := serializeRecord(record)
	if err != nil {
		return nil, err
	}
	newVersion, err := s.backend.PutIfVersion(ctx, MakeKey(ownerID, taskID), data, version, record.ExpiresAt)
	if err != nil {
		return nil, remapConflict(err, taskID)
	}
	record.Version = newVersion
	return record, nil
}

func (s *store) SetResult(ctx context.Context, taskID, ownerID string, result any) error {
	record, version, err := s.fetch(ctx, taskID, ownerID)
	if err != nil {
		return err
	}
	if record.IsExpired() {
		return errs.Expired(taskID, *record.ExpiresAt)
	}
	if record.Status.IsTerminal() {
		return errs.InvalidTransition(taskID, string(record.Status), string(record.Status))
	}

	record.Result = result
	record.LastUpdatedAt = time.Now().UTC()

	data, err := serializeRecord(record)
	if err != nil {
		return err
	}
	if _, err := s.backend.PutIfVersion(ctx, MakeKey(ownerID, taskID), data, version, record.ExpiresAt); err != nil {
		return remapConflict(err, taskID)
	}
	return nil
}

func (s *store) GetResult(ctx context.Context, taskID, ownerID string) (any, error) {
	record, err := s.Get(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if !record.Status.IsTerminal() || record.Result == nil {
		return nil, errs.NotReady(taskID, string(record.Status))
	}
	return record.Result, nil
}

func (s *store) CompleteWithResult(ctx context.Context, taskID, ownerID string, status Status, message *string, result any) (*Record, error) {
	record, version, err := s.fetch(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.IsExpired() {
		return nil, errs.Expired(taskID, *record.ExpiresAt)
	}
	if !record.Status.CanTransitionTo(status) {
		return nil, errs.InvalidTransition(taskID, string(record.Status), string(status))
	}

	record.Status = status
	record.StatusMessage = message
	record.Result = result
	record.LastUpdatedAt = time.Now().UTC()

	data, err := serializeRecord(record)
	if err != nil {
		return nil, err
	}
	newVersion, err := s.backend.PutIfVersion(ctx, MakeKey(ownerID, taskID), data, version, record.ExpiresAt)
	if err != nil {
		return nil, remapConflict(err, taskID)
	}
	record.Version = newVersion
	return record, nil
}

func (s *store) List(ctx context.Context, opts ListOptions) (Page, error) {
	entries, err := s.backend.ListByPrefix(ctx, MakePrefix(opts.OwnerID))
	if err != nil {
		return Page{}, err
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		record, err := deserializeRecord(entry.Data)
		if err != nil {
			continue
		}
		record.Version = entry.Version
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	startIdx := 0
	if opts.Cursor != "" {
		for i, r := range records {
			if r.TaskID == opts.Cursor {
				startIdx = i + 1
				break
			}
		}
	}

	limit := 50
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if limit < 0 {
		limit = 0
	}

	end := startIdx + limit
	if end > len(records) {
		end = len(records)
	}
	var page []*Record
	if startIdx < len(records) && limit > 0 {
		page = records[startIdx:end]
	}

	var nextCursor string
	if limit == 0 {
		// Nothing was consumed, so the resume point is unchanged: hand the
		// caller back the cursor they gave us if records remain there.
		if startIdx < len(records) {
			nextCursor = opts.Cursor
		}
	} else if end < len(records) && len(page) > 0 {
		nextCursor = page[len(page)-1].TaskID
	}

	return Page{Tasks: page, NextCursor: nextCursor}, nil
}

func (s *store) Cancel(ctx context.Context, taskID, ownerID string) (*Record, error) {
	return s.UpdateStatus(ctx, taskID, ownerID, StatusCancelled, nil)
}

func (s *store) CleanupExpired(ctx context.Context) (int, error) {
	return s.backend.CleanupExpired(ctx)
}

var _ Store = (*store)(nil)
