// Package idempotency maps IntentEnvelope.IdempotencyKey to the
// executionId that first claimed it, and guards an execution's file
// state with an advisory per-execution lock so two processes never
// run the same executionId concurrently.
package idempotency

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gomind-labs/execrt/core"
)

// Index is a persistent idempotencyKey -> executionId map, one JSON
// file under dir, read-modify-written atomically on every Record
// call so a crash between read and write never loses or duplicates an
// entry.
type Index struct {
	mu   sync.Mutex
	path string
}

type indexFile struct {
	Keys map[string]string `json:"keys"`
}

// NewIndex opens (without yet reading) the idempotency index file
// under dir.
func NewIndex(dir string) *Index {
	return &Index{path: filepath.Join(dir, "idempotency_index.json")}
}

// Lookup returns the executionId already claimed by key, if any.
func (idx *Index) Lookup(_ context.Context, key string) (string, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := idx.load()
	if err != nil {
		return "", false, err
	}
	id, ok := f.Keys[key]
	return id, ok, nil
}

// Record claims key for executionID. If key is already claimed by a
// different executionId, the existing mapping is left untouched and
// no error is raised — Route's Lookup call should already have caught
// the dedup case; a Record racing in after that is a narrow window
// this index resolves in favor of whichever write won first.
func (idx *Index) Record(_ context.Context, key, executionID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := idx.load()
	if err != nil {
		return err
	}
	if _, exists := f.Keys[key]; exists {
		return nil
	}
	f.Keys[key] = executionID
	return idx.persist(f)
}

func (idx *Index) load() (*indexFile, error) {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &indexFile{Keys: map[string]string{}}, nil
		}
		return nil, core.NewFrameworkError("Index.load", "configuration", err).WithID(idx.path)
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.NewFrameworkError("Index.load", "configuration", err).WithID(idx.path)
	}
	if f.Keys == nil {
		f.Keys = map[string]string{}
	}
	return &f, nil
}

func (idx *Index) persist(f *indexFile) error {
	if err := core.EnsureDir(filepath.Dir(idx.path)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return core.NewFrameworkError("Index.persist", "configuration", err).WithID(idx.path)
	}
	return core.WriteFileAtomic(idx.path, data, 0o644)
}

// DerivedKey computes the deterministic idempotency key an envelope
// would use when the caller didn't supply one explicitly: the
// canonical hash of the envelope minus routingMetadata and
// metadata.traceId, both of which vary per attempt without changing
// what the caller is asking for.
func DerivedKey(envelope *core.IntentEnvelope) (string, error) {
	clone := *envelope
	clone.RoutingMetadata = core.RoutingMetadata{}
	if clone.Metadata != nil {
		meta := make(map[string]core.Value, len(clone.Metadata))
		for k, v := range clone.Metadata {
			if k == "traceId" {
				continue
			}
			meta[k] = v
		}
		clone.Metadata = meta
	}
	return core.ContentHash(&clone)
}
