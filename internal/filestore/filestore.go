package filestore

import (
	"context"
	neturl "net/url"
	"strings"
	"sync"
)

// FileStore abstracts the blob store holding uploaded source documents.
// Implementations must make Delete idempotent: deleting an object that is
// already gone succeeds, so cleanup retries stay safe.
type FileStore interface {
	Delete(ctx context.Context, fileID string) error
	ResolveID(url string) string
}

// ExtractID derives the stable identifier for an uploaded document URL.
// Two URLs naming the same stored object resolve to the same identifier:
//
//	gs://bucket/path/file.pdf                   → bucket/path/file.pdf
//	https://storage.googleapis.com/bucket/o.pdf → bucket/o.pdf
//	https://drive.google.com/file/d/ID/view     → ID
//	https://host/path?id=ID                     → ID
//
// Anything else resolves to itself, which keeps identifier equality exact.
func ExtractID(url string) string {
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "gs://") {
		return strings.TrimPrefix(url, "gs://")
	}

	u, err := neturl.Parse(url)
	if err != nil {
		return url
	}
	if id := u.Query().Get("id"); id != "" {
		return id
	}
	if u.Host == "drive.google.com" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i, p := range parts {
			if p == "d" && i+1 < len(parts) {
				return parts[i+1]
			}
		}
	}
	if u.Host == "storage.googleapis.com" {
		return strings.Trim(u.Path, "/")
	}

	return url
}

// Memory is an in-process FileStore for tests and local development. URLs
// resolve with the same rules as the GCS store.
type Memory struct {
	mu      sync.Mutex
	objects map[string]struct{}
}

// NewMemory creates an empty in-memory file store
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]struct{})}
}

// Put registers a stored object under its identifier
func (m *Memory) Put(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[fileID] = struct{}{}
}

// Delete removes the object. Absent objects delete successfully.
func (m *Memory) Delete(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, fileID)
	return nil
}

// ResolveID implements FileStore
func (m *Memory) ResolveID(url string) string {
	return ExtractID(url)
}

// Has reports whether the object is still stored
func (m *Memory) Has(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[fileID]
	return ok
}

// Len returns the number of stored objects
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
