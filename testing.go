package phivault

// This file provides in-memory implementations of every collaborator
// interface for use in tests and examples. All of them are safe for
// concurrent use.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MemorySecretStore implements SecretStore in memory.
type MemorySecretStore struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

// NewMemorySecretStore creates an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string][]byte)}
}

func (s *MemorySecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.secrets[name]
	if !ok {
		return nil, fmt.Errorf("%w: secret %q", ErrNotFound, name)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemorySecretStore) SetSecret(ctx context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.secrets[name] = stored
	return nil
}

func (s *MemorySecretStore) DeleteSecret(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, name)
	return nil
}

// MemoryBlobStore implements BlobStore in memory.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	return ok, nil
}

func (s *MemoryBlobStore) Upload(ctx context.Context, name string, data []byte, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; ok && !overwrite {
		return fmt.Errorf("%w: blob %q", ErrAlreadyExists, name)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[name] = stored
	return nil
}

func (s *MemoryBlobStore) Download(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: blob %q", ErrNotFound, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	delete(s.blobs, name)
	return ok, nil
}

// MemoryLedger implements Ledger in memory. Transaction ids take the form
// "test.N" with N counting from 1.
type MemoryLedger struct {
	mu      sync.Mutex
	entries [][]byte
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(ctx context.Context, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	l.entries = append(l.entries, stored)
	return fmt.Sprintf("test.%d", len(l.entries)), nil
}

func (l *MemoryLedger) Read(ctx context.Context, transactionID string) (LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq, err := strconv.Atoi(strings.TrimPrefix(transactionID, "test."))
	if err != nil || seq < 1 || seq > len(l.entries) {
		return LedgerEntry{}, fmt.Errorf("%w: ledger entry %q", ErrNotFound, transactionID)
	}
	return LedgerEntry{TransactionID: transactionID, Contents: l.entries[seq-1]}, nil
}

// MemoryConsentIndex implements ConsentIndex in memory.
type MemoryConsentIndex struct {
	mu      sync.Mutex
	records map[string]ConsentPointer
}

// NewMemoryConsentIndex creates an empty in-memory consent index.
func NewMemoryConsentIndex() *MemoryConsentIndex {
	return &MemoryConsentIndex{records: make(map[string]ConsentPointer)}
}

func indexKey(partition, patientID string) string {
	return partition + "/" + patientID
}

func (i *MemoryConsentIndex) Insert(ctx context.Context, partition string, rec ConsentPointer) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := indexKey(partition, rec.PatientID)
	if _, ok := i.records[key]; ok {
		return fmt.Errorf("%w: consent pointer for %q", ErrAlreadyExists, rec.PatientID)
	}
	i.records[key] = rec
	return nil
}

func (i *MemoryConsentIndex) Get(ctx context.Context, partition, patientID string) (ConsentPointer, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[indexKey(partition, patientID)]
	if !ok {
		return ConsentPointer{}, fmt.Errorf("%w: consent pointer for %q", ErrNotFound, patientID)
	}
	return rec, nil
}

// MemoryPolicyEngine implements PolicyEngine in memory with a minimal
// relationship model: a subject can read an object when it holds can_read on
// it directly, or when any of its groups holds the owner relation on it.
// Group membership is seeded through AddMember.
type MemoryPolicyEngine struct {
	mu      sync.Mutex
	tuples  []AuthorizationTuple
	members map[string][]string
}

// NewMemoryPolicyEngine creates an empty in-memory policy engine.
func NewMemoryPolicyEngine() *MemoryPolicyEngine {
	return &MemoryPolicyEngine{members: make(map[string][]string)}
}

// AddMember records that subject belongs to group, e.g.
// AddMember("user:alice", "group:doctor").
func (p *MemoryPolicyEngine) AddMember(subject, group string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[subject] = append(p.members[subject], group)
}

func (p *MemoryPolicyEngine) WriteTuples(ctx context.Context, tuples []AuthorizationTuple) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tuples = append(p.tuples, tuples...)
	return nil
}

// Tuples returns a copy of every written tuple, in write order.
func (p *MemoryPolicyEngine) Tuples() []AuthorizationTuple {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AuthorizationTuple, len(p.tuples))
	copy(out, p.tuples)
	return out
}

func (p *MemoryPolicyEngine) ListObjects(ctx context.Context, subject, relation, objectType string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := objectType + ":"
	var objects []string
	seen := make(map[string]bool)
	for _, t := range p.tuples {
		if !strings.HasPrefix(t.Object, prefix) || seen[t.Object] {
			continue
		}
		direct := t.Subject == subject && t.Relation == relation
		viaGroup := t.Relation == OwnerRelation && relation == ReadRelation && p.isMember(subject, t.Subject)
		if direct || viaGroup {
			seen[t.Object] = true
			objects = append(objects, t.Object)
		}
	}
	return objects, nil
}

func (p *MemoryPolicyEngine) isMember(subject, group string) bool {
	for _, g := range p.members[subject] {
		if g == group {
			return true
		}
	}
	return false
}
