package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	opts "github.com/jyscao/tail-risk"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// Ref identifies one persisted snapshot: one resolution run of one schema.
type Ref struct {
	Schema string
	RunID  string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single reference.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

// Lister enumerates the runs stored for a schema.
type Lister interface {
	Runs(ctx context.Context, schema string) ([]string, error)
}

type Mutator[T any] func(*T) error

func (r Ref) Identifier() (string, error) {
	if r.Schema == "" {
		return "", fmt.Errorf("state: schema is required")
	}
	if r.RunID == "" {
		return "", fmt.Errorf("state: run id is required for schema %q", r.Schema)
	}
	return fmt.Sprintf("schema/%s/run/%s", r.Schema, r.RunID), nil
}

// RefFor returns the reference a snapshot is stored under.
func RefFor(snapshot opts.Snapshot) Ref {
	return Ref{Schema: snapshot.Schema, RunID: snapshot.RunID}
}

// Recorder persists resolved configurations.
type Recorder struct {
	Store Store[opts.Snapshot]
	Now   func() time.Time
}

// Record saves the snapshot of cfg, keyed by its schema and run id.
func (r Recorder) Record(ctx context.Context, cfg *opts.Config, extra map[string]string) (Meta, error) {
	if r.Store == nil {
		return Meta{}, fmt.Errorf("state: store is required")
	}
	if cfg == nil {
		return Meta{}, fmt.Errorf("state: config is required")
	}
	snapshot := cfg.Snapshot()
	ref := RefFor(snapshot)
	etag, err := ETag(snapshot)
	if err != nil {
		return Meta{}, err
	}
	meta := Meta{
		SnapshotID: snapshot.RunID,
		ETag:       etag,
		UpdatedAt:  r.now(),
		Extra:      extra,
	}
	saved, err := r.Store.Save(ctx, ref, snapshot, meta)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save run %q of schema %q: %w", ref.RunID, ref.Schema, err)
	}
	return saved, nil
}

// Mutate loads one snapshot, applies fn and saves it back. When meta carries
// an ETag it must match the stored one.
func (r Recorder) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[opts.Snapshot]) (opts.Snapshot, Meta, error) {
	if r.Store == nil {
		return opts.Snapshot{}, Meta{}, fmt.Errorf("state: store is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return opts.Snapshot{}, Meta{}, err
	}
	if fn == nil {
		return opts.Snapshot{}, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return opts.Snapshot{}, Meta{}, fmt.Errorf("state: load run %q of schema %q: %w", ref.RunID, ref.Schema, err)
	}
	if !ok {
		return opts.Snapshot{}, Meta{}, fmt.Errorf("state: run %q of schema %q not found", ref.RunID, ref.Schema)
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return opts.Snapshot{}, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return opts.Snapshot{}, loadedMeta, err
	}
	if snapshot.RunID != ref.RunID || snapshot.Schema != ref.Schema {
		return opts.Snapshot{}, loadedMeta, fmt.Errorf("state: mutator may not change the run identity")
	}

	etag, err := ETag(snapshot)
	if err != nil {
		return opts.Snapshot{}, loadedMeta, err
	}
	saveMeta := mergeMeta(loadedMeta, Meta{ETag: etag, UpdatedAt: r.now(), Extra: meta.Extra})
	savedMeta, err := r.Store.Save(ctx, ref, snapshot, saveMeta)
	if err != nil {
		return opts.Snapshot{}, loadedMeta, fmt.Errorf("state: save run %q of schema %q: %w", ref.RunID, ref.Schema, err)
	}
	return snapshot, savedMeta, nil
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// ETag returns a content hash of snapshot.
func ETag(snapshot opts.Snapshot) (string, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("state: encode snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8]), nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
