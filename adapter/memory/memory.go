// Package memory is an in-process principal store. Models mix in Document.
package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/devmarvs/tokenauth/adapter"
	"github.com/devmarvs/tokenauth/entity"
)

// Document is the base every model stored here embeds.
type Document struct {
	ID     string
	Token  string
	Fields map[string]string
}

// PrincipalID implements adapter.Record.
func (d Document) PrincipalID() string { return d.ID }

// AuthenticationToken implements adapter.Record.
func (d Document) AuthenticationToken() string { return d.Token }

// Store keeps documents per principal type.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
}

var _ adapter.Adapter = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{docs: map[string]map[string]Document{}}
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return "memory" }

// ModelsBaseClass implements adapter.Adapter.
func (s *Store) ModelsBaseClass() reflect.Type {
	return reflect.TypeOf(Document{})
}

// Put stores doc under principalType, replacing any document with the same ID.
func (s *Store) Put(principalType string, doc Document) {
	key := entity.Underscore(principalType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[key] == nil {
		s.docs[key] = map[string]Document{}
	}
	fields := make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	doc.Fields = fields
	s.docs[key][doc.ID] = doc
}

// Delete removes a document.
func (s *Store) Delete(principalType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[entity.Underscore(principalType)], id)
}

// FindByIdentifier returns the document whose identifier field equals
// identifier. Documents are scanned in ID order so duplicates resolve
// deterministically.
func (s *Store) FindByIdentifier(ctx context.Context, ent entity.Entity, identifier string) (adapter.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.docs[ent.NameUnderscore]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		doc := docs[id]
		if doc.Fields[ent.IdentifierFieldName] == identifier {
			return doc, nil
		}
	}
	return nil, adapter.ErrNotFound
}
