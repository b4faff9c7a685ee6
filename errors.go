package phivault

import "errors"

var (
	// Record and index state errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Payload errors
	ErrInvalidPayload  = errors.New("payload is not valid JSON")
	ErrUnknownCategory = errors.New("unknown patient data category")

	// Crypto errors
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// Downstream service errors
	ErrPolicyUnavailable = errors.New("policy engine unavailable")
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// Query errors
	ErrRetrieval = errors.New("retrieval failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
