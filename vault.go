package phivault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hengadev/phivault/internal/crypto"
)

// OrphanHook is invoked when a multi-artifact write fails after its first
// durable write landed, leaving an artifact with no counterpart. The hook
// receives the kind of orphaned artifact ("blob" or "ledger") and its name or
// transaction id. Reconciliation itself is the caller's responsibility; the
// vault only reports.
type OrphanHook func(ctx context.Context, artifact, name string)

// Vault orchestrates the secret store, blob store, and policy engine to
// persist one encrypted PHI record per (patient, category) pair.
//
// A record exists iff both its key secret and its ciphertext blob exist. The
// two are created together at store time; update only ever replaces the
// ciphertext, never the key. The blob is written before the secret so that a
// crash in between leaves ciphertext without a key pointer, which is
// recoverable, rather than a key pointing at nothing.
type Vault struct {
	secrets     SecretStore
	blobs       BlobStore
	policy      PolicyEngine
	ownerGroups []string
	orphanHook  OrphanHook
	logger      zerolog.Logger
}

// VaultOption configures a Vault during construction.
type VaultOption func(*Vault) error

// WithVaultLogger sets the logger used for vault operations. Events never
// carry key material or plaintext.
func WithVaultLogger(logger zerolog.Logger) VaultOption {
	return func(v *Vault) error {
		v.logger = logger
		return nil
	}
}

// WithOwnerGroups overrides the role groups granted the owner relation at
// store time.
func WithOwnerGroups(groups []string) VaultOption {
	return func(v *Vault) error {
		if len(groups) == 0 {
			return fmt.Errorf("%w: owner groups cannot be empty", ErrInvalidConfiguration)
		}
		v.ownerGroups = groups
		return nil
	}
}

// WithOrphanHook sets the hook invoked when a partial write leaves an
// orphaned artifact behind.
func WithOrphanHook(hook OrphanHook) VaultOption {
	return func(v *Vault) error {
		v.orphanHook = hook
		return nil
	}
}

// NewVault creates a Vault over the given collaborators.
func NewVault(secrets SecretStore, blobs BlobStore, policy PolicyEngine, opts ...VaultOption) (*Vault, error) {
	if secrets == nil {
		return nil, fmt.Errorf("%w: secret store cannot be nil", ErrInvalidConfiguration)
	}
	if blobs == nil {
		return nil, fmt.Errorf("%w: blob store cannot be nil", ErrInvalidConfiguration)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: policy engine cannot be nil", ErrInvalidConfiguration)
	}
	v := &Vault{
		secrets:     secrets,
		blobs:       blobs,
		policy:      policy,
		ownerGroups: DefaultOwnerGroups,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// CompositeKey returns the deterministic name combining a patient id and a
// category identifier. It namespaces both the key secret and the ciphertext
// blob of a record.
func CompositeKey(patientID string, category PatientDataCategory) string {
	return patientID + "-" + category.ID().String()
}

func secretName(compositeKey string) string {
	return SecretNamePrefix + compositeKey
}

func blobName(compositeKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(compositeKey)) + BlobNameSuffix
}

// Store encrypts data under a fresh key and persists the record for
// (patientID, category). It fails with ErrAlreadyExists if a key secret for
// the composite already exists and with ErrInvalidPayload if data is not
// valid JSON; neither failure leaves side effects.
//
// The existence check is a pre-check, not an atomic create: two concurrent
// Store calls for the same composite can race past it. See the package
// documentation.
func (v *Vault) Store(ctx context.Context, patientID string, category PatientDataCategory, data []byte) error {
	name := CompositeKey(patientID, category)
	if _, err := v.secrets.GetSecret(ctx, secretName(name)); err == nil {
		return fmt.Errorf("%w: record %q", ErrAlreadyExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checking key for %q: %w", name, err)
	}

	if !json.Valid(data) {
		return fmt.Errorf("%w: PHI for %q", ErrInvalidPayload, name)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key for %q: %w", name, err)
	}
	ciphertext, err := crypto.Encrypt(data, key)
	if err != nil {
		return fmt.Errorf("encrypting PHI for %q: %w", name, err)
	}

	// Ciphertext first: a blob without a key is recoverable, a key without
	// a blob is not.
	if err := v.blobs.Upload(ctx, blobName(name), ciphertext, true); err != nil {
		return fmt.Errorf("uploading PHI for %q: %w", name, err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := v.secrets.SetSecret(ctx, secretName(name), []byte(encoded)); err != nil {
		v.notifyOrphan(ctx, "blob", blobName(name))
		return fmt.Errorf("storing key for %q: %w", name, err)
	}

	if err := v.grantOwnership(ctx, name); err != nil {
		return err
	}

	v.logger.Info().
		Str("patient_id", patientID).
		Stringer("category", category).
		Msg("PHI record stored")
	return nil
}

// Retrieve downloads and decrypts the record named by compositeKey, returning
// its JSON payload. It fails with ErrNotFound when either the key secret or
// the blob is absent; decryption failures are always surfaced as
// ErrDecryptionFailed, never mapped to absence.
func (v *Vault) Retrieve(ctx context.Context, compositeKey string) (json.RawMessage, error) {
	secret, err := v.secrets.GetSecret(ctx, secretName(compositeKey))
	if err != nil {
		return nil, fmt.Errorf("reading key for %q: %w", compositeKey, err)
	}
	key, err := base64.StdEncoding.DecodeString(string(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: stored key for %q is not valid base64", ErrDecryptionFailed, compositeKey)
	}

	ciphertext, err := v.blobs.Download(ctx, blobName(compositeKey))
	if err != nil {
		return nil, fmt.Errorf("downloading PHI for %q: %w", compositeKey, err)
	}

	plaintext, err := crypto.Decrypt(ciphertext, key)
	switch {
	case errors.Is(err, crypto.ErrTooShort):
		return nil, fmt.Errorf("%w: record %q", ErrCiphertextTooShort, compositeKey)
	case err != nil:
		return nil, fmt.Errorf("%w: record %q: %v", ErrDecryptionFailed, compositeKey, err)
	}
	if !json.Valid(plaintext) {
		return nil, fmt.Errorf("%w: record %q decrypted to non-JSON", ErrDecryptionFailed, compositeKey)
	}
	return json.RawMessage(plaintext), nil
}

// Update re-encrypts data with the record's existing key and overwrites the
// ciphertext only. Both the key secret and the blob must already exist; it
// fails with ErrNotFound otherwise. The stored key never changes.
func (v *Vault) Update(ctx context.Context, patientID string, category PatientDataCategory, data []byte) error {
	name := CompositeKey(patientID, category)
	secret, err := v.secrets.GetSecret(ctx, secretName(name))
	if err != nil {
		return fmt.Errorf("reading key for %q: %w", name, err)
	}
	key, err := base64.StdEncoding.DecodeString(string(secret))
	if err != nil {
		return fmt.Errorf("%w: stored key for %q is not valid base64", ErrDecryptionFailed, name)
	}

	if !json.Valid(data) {
		return fmt.Errorf("%w: PHI for %q", ErrInvalidPayload, name)
	}

	exists, err := v.blobs.Exists(ctx, blobName(name))
	if err != nil {
		return fmt.Errorf("checking PHI for %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: no PHI blob for %q", ErrNotFound, name)
	}

	ciphertext, err := crypto.Encrypt(data, key)
	if err != nil {
		return fmt.Errorf("encrypting PHI for %q: %w", name, err)
	}
	if err := v.blobs.Upload(ctx, blobName(name), ciphertext, true); err != nil {
		return fmt.Errorf("uploading PHI for %q: %w", name, err)
	}

	v.logger.Info().
		Str("patient_id", patientID).
		Stringer("category", category).
		Msg("PHI record updated")
	return nil
}

// Delete removes the record named by compositeKey: the blob first, then a
// best-effort delete of the key secret. It fails with ErrNotFound only when
// the blob was already absent.
func (v *Vault) Delete(ctx context.Context, compositeKey string) error {
	deleted, err := v.blobs.Delete(ctx, blobName(compositeKey))
	if err != nil {
		return fmt.Errorf("deleting PHI for %q: %w", compositeKey, err)
	}
	if !deleted {
		return fmt.Errorf("%w: no PHI blob for %q", ErrNotFound, compositeKey)
	}

	if err := v.secrets.DeleteSecret(ctx, secretName(compositeKey)); err != nil {
		v.logger.Warn().
			Str("composite_key", compositeKey).
			Err(err).
			Msg("key secret not deleted, leaving orphaned secret")
	}

	v.logger.Info().Str("composite_key", compositeKey).Msg("PHI record deleted")
	return nil
}

func (v *Vault) grantOwnership(ctx context.Context, compositeKey string) error {
	tuples := make([]AuthorizationTuple, 0, len(v.ownerGroups))
	for _, group := range v.ownerGroups {
		tuples = append(tuples, AuthorizationTuple{
			Subject:  group,
			Relation: OwnerRelation,
			Object:   PatientObjectPrefix + compositeKey,
		})
	}
	if err := v.policy.WriteTuples(ctx, tuples); err != nil {
		return fmt.Errorf("%w: granting ownership of %q: %v", ErrPolicyUnavailable, compositeKey, err)
	}
	return nil
}

func (v *Vault) notifyOrphan(ctx context.Context, artifact, name string) {
	v.logger.Error().
		Str("artifact", artifact).
		Str("name", name).
		Msg("partial write left orphaned artifact")
	if v.orphanHook != nil {
		v.orphanHook(ctx, artifact, name)
	}
}
