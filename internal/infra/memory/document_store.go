package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
)

// DocumentStore keeps documents as JSON so reads return the same loosely
// typed shapes a remote store would (numbers come back as float64).
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string][]byte)}
}

func (s *DocumentStore) Get(_ context.Context, path string) (domain.Fields, bool, error) {
	s.mu.RLock()
	raw, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var fields domain.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	return fields, true, nil
}

func (s *DocumentStore) Set(_ context.Context, path string, fields domain.Fields, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.Fields{}
	if merge {
		if raw, ok := s.docs[path]; ok {
			if err := json.Unmarshal(raw, &next); err != nil {
				return &domain.StoreError{Op: "set", Path: path, Err: err}
			}
		}
	}
	for k, v := range fields {
		next[k] = v
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return &domain.StoreError{Op: "set", Path: path, Err: err}
	}
	s.docs[path] = raw
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	s.mu.RLock()
	var paths []string
	for path := range s.docs {
		if parent, _ := app.SplitPath(path); parent == collection {
			paths = append(paths, path)
		}
	}
	s.mu.RUnlock()
	sort.Strings(paths)

	out := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		fields, ok, err := s.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		_, id := app.SplitPath(path)
		out = append(out, domain.Document{ID: id, Path: path, Fields: fields})
	}
	return out, nil
}
