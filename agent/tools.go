package agent

import (
	"context"
	"fmt"
	"sync"
)

// ObjectStore is the put/get contract for tutorial bodies and cover images.
// The engine stores only the returned URL; bodies never enter workflow
// state.
type ObjectStore interface {
	// Put writes body at key and returns a retrieval URL.
	Put(ctx context.Context, key string, body []byte) (url string, err error)

	// Get returns the body stored at key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// TutorialKey returns the object-store key for a tutorial body version.
func TutorialKey(roadmapID, conceptID string, version int) string {
	return fmt.Sprintf("%s/concepts/%s/v%d.md", roadmapID, conceptID, version)
}

// CoverImageKey returns the object-store key for a roadmap cover image.
func CoverImageKey(roadmapID string) string {
	return roadmapID + "/cover.png"
}

// SearchResult is one hit from external web search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// WebSearcher is the opaque web-search tool contract.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// ImageGenerator renders a cover image for a roadmap. Fan-out calls it
// asynchronously and never blocks on the result.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// MemObjectStore is an in-memory ObjectStore for tests and examples. URLs
// use the mem:// scheme.
type MemObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemObjectStore creates an empty in-memory object store.
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{objects: make(map[string][]byte)}
}

// Put implements ObjectStore.
func (s *MemObjectStore) Put(ctx context.Context, key string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	s.objects[key] = buf
	return "mem://" + key, nil
}

// Get implements ObjectStore.
func (s *MemObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Len returns the number of stored objects.
func (s *MemObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ ObjectStore = (*MemObjectStore)(nil)
