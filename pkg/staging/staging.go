package staging

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// ChangeKind describes what happened to the staging store.
type ChangeKind string

const (
	ChangeStaged  ChangeKind = "staged"
	ChangeDrained ChangeKind = "drained"
)

// ChangeCallback is called after a staging store mutation, outside the lock.
// docs holds the staged document for ChangeStaged and the drained documents
// for ChangeDrained. remaining is the store size right after the mutation.
type ChangeCallback func(kind ChangeKind, docs []Document, remaining int)

// Document is one uploaded unit of input awaiting a blend.
type Document struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Content  string    `json:"-"`
	Size     int       `json:"size"`
	Digest   string    `json:"digest"`
	StagedAt time.Time `json:"staged_at"`
}

// Store holds the documents uploaded since the last drain.
type Store interface {
	// Upload appends a document. Names are not unique and never overwrite.
	Upload(name, content string) Document

	// ListNames returns the staged names in insertion order.
	ListNames() []string

	// DrainAll atomically returns every staged document and empties the store.
	DrainAll() []Document

	// Len returns the number of staged documents.
	Len() int

	// SetChangeCallback registers the mutation callback.
	SetChangeCallback(cb ChangeCallback)
}

// store implements Store.
type store struct {
	log      logrus.FieldLogger
	mu       sync.Mutex
	docs     []Document
	onChange ChangeCallback
}

// Ensure store implements Store.
var _ Store = (*store)(nil)

// NewStore creates an empty staging store.
func NewStore(log logrus.FieldLogger) Store {
	return &store{
		log: log.WithField("component", "staging"),
	}
}

// SetChangeCallback sets the callback for store mutations.
func (s *store) SetChangeCallback(cb ChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = cb
}

// Upload appends a document under the store lock.
func (s *store) Upload(name, content string) Document {
	sum := blake3.Sum256([]byte(content))

	doc := Document{
		ID:       uuid.New().String(),
		Name:     name,
		Content:  content,
		Size:     len(content),
		Digest:   hex.EncodeToString(sum[:]),
		StagedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.docs = append(s.docs, doc)
	remaining := len(s.docs)
	cb := s.onChange
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"name":   name,
		"size":   doc.Size,
		"staged": remaining,
	}).Debug("Document staged")

	if cb != nil {
		cb(ChangeStaged, []Document{doc}, remaining)
	}

	return doc
}

// ListNames returns the names of all staged documents in insertion order.
func (s *store) ListNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.docs))
	for _, doc := range s.docs {
		names = append(names, doc.Name)
	}

	return names
}

// DrainAll captures the staged documents and resets the store in one
// critical section, so every document is drained at most once.
func (s *store) DrainAll() []Document {
	s.mu.Lock()
	drained := s.docs
	s.docs = nil
	cb := s.onChange
	s.mu.Unlock()

	if drained == nil {
		drained = []Document{}
	}

	s.log.WithField("documents", len(drained)).Debug("Staging store drained")

	if cb != nil {
		cb(ChangeDrained, drained, 0)
	}

	return drained
}

// Len returns the number of staged documents.
func (s *store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.docs)
}
