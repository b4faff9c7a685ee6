package phivault

import (
	"context"
	"time"
)

// SecretStore defines the contract for the secret backend that holds the
// per-record encryption keys.
//
// Implementations:
//   - HashiCorp Vault KV v2: github.com/hengadev/phivault/providers/vaultkv.Store
//   - In-memory (tests): MemorySecretStore
type SecretStore interface {
	// GetSecret retrieves a secret by name. It fails with ErrNotFound if no
	// secret exists under that name.
	GetSecret(ctx context.Context, name string) ([]byte, error)

	// SetSecret stores a secret under the given name, overwriting any
	// existing value.
	SetSecret(ctx context.Context, name string, value []byte) error

	// DeleteSecret removes a secret. Deletion is best-effort: callers treat
	// failures as non-fatal.
	DeleteSecret(ctx context.Context, name string) error
}

// BlobStore defines the contract for the object backend that holds the
// encrypted PHI payloads.
//
// Implementations:
//   - AWS S3: github.com/hengadev/phivault/providers/s3blob.Store
//   - In-memory (tests): MemoryBlobStore
type BlobStore interface {
	// Exists reports whether an object with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Upload writes an object. When overwrite is false and the object
	// already exists, it fails with ErrAlreadyExists.
	Upload(ctx context.Context, name string, data []byte, overwrite bool) error

	// Download retrieves an object's bytes, failing with ErrNotFound if the
	// object is absent.
	Download(ctx context.Context, name string) ([]byte, error)

	// Delete removes an object and reports whether it was present.
	Delete(ctx context.Context, name string) (bool, error)
}

// LedgerEntry is one appended record read back from the ledger. Contents
// holds the exact bytes that were appended; it is nil when the entry exists
// but carries no content.
type LedgerEntry struct {
	TransactionID string
	Contents      []byte
}

// Ledger defines the contract for the tamper-evident append-only store that
// records consent grants. Append must not return before the entry is durable.
//
// Implementations:
//   - SQLite hash chain: github.com/hengadev/phivault/providers/sqliteledger.Store
//   - In-memory (tests): MemoryLedger
type Ledger interface {
	// Append durably appends payload and returns its transaction id.
	Append(ctx context.Context, payload []byte) (string, error)

	// Read returns the entry recorded under the given transaction id,
	// failing with ErrNotFound if no such entry exists.
	Read(ctx context.Context, transactionID string) (LedgerEntry, error)
}

// ConsentPointer is the secondary-index entry pointing at a patient's consent
// record in the ledger. The ledger entry is the source of truth for content;
// the pointer only locates it.
type ConsentPointer struct {
	PatientID     string
	TransactionID string
	TimestampUTC  time.Time
}

// ConsentIndex defines the contract for the fast secondary index over consent
// ledger entries.
//
// Implementations:
//   - SQLite: github.com/hengadev/phivault/providers/sqliteledger.Store
//   - In-memory (tests): MemoryConsentIndex
type ConsentIndex interface {
	// Insert records a pointer for a patient. It is conditional: if a
	// pointer already exists for (partition, rec.PatientID) it fails with
	// ErrAlreadyExists and leaves the existing pointer untouched.
	Insert(ctx context.Context, partition string, rec ConsentPointer) error

	// Get returns the pointer for a patient, failing with ErrNotFound if
	// none has been recorded.
	Get(ctx context.Context, partition, patientID string) (ConsentPointer, error)
}

// AuthorizationTuple is one subject-relation-object statement written to the
// policy engine. Translating ownership into read capability is the policy
// engine's own model, external to this module.
type AuthorizationTuple struct {
	Subject  string
	Relation string
	Object   string
}

// PolicyEngine defines the contract for the relationship-based access control
// service.
//
// Implementations:
//   - OpenFGA: github.com/hengadev/phivault/providers/openfga.Engine
//   - In-memory (tests): MemoryPolicyEngine
type PolicyEngine interface {
	// WriteTuples stores the given authorization tuples.
	WriteTuples(ctx context.Context, tuples []AuthorizationTuple) error

	// ListObjects returns the ids of every object of the given type for
	// which the subject holds the given relation.
	ListObjects(ctx context.Context, subject, relation, objectType string) ([]string, error)
}
