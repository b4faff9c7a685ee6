package phivault

// Naming conventions for stored artifacts
const (
	// SecretNamePrefix is prepended to the composite key to form the secret
	// name holding a record's encryption key.
	SecretNamePrefix = "key-"

	// BlobNameSuffix is appended to the base64-encoded composite key to form
	// the blob name holding a record's ciphertext.
	BlobNameSuffix = ".json"

	// PatientIDLength is the width of a canonical patient id in the
	// composite key. Canonical 128-bit identifiers print as exactly 36
	// characters, which is why composite keys are split at a fixed offset
	// rather than scanned for a delimiter.
	PatientIDLength = 36
)

// Policy engine vocabulary
const (
	// OwnerRelation is the relation written for role groups when a record
	// is stored.
	OwnerRelation = "owner"

	// ReadRelation is the relation resolved when listing what a subject may
	// see.
	ReadRelation = "can_read"

	// PatientObjectType is the policy object type for (patient, category)
	// composites.
	PatientObjectType = "patient"

	// UserSubjectPrefix qualifies a user id as a policy subject.
	UserSubjectPrefix = "user:"

	// PatientObjectPrefix qualifies a composite key as a policy object.
	PatientObjectPrefix = "patient:"
)

// DefaultOwnerGroups are the role groups granted the owner relation on every
// stored (patient, category) object. Revocation is out of scope.
var DefaultOwnerGroups = []string{
	"group:nurse",
	"group:doctor",
	"group:administrative",
}

// Environment variable names
const (
	// EnvVaultAddress is the address of the HashiCorp Vault server holding
	// record encryption keys. Example: "https://vault.internal:8200"
	EnvVaultAddress = "PHIVAULT_VAULT_ADDR"

	// EnvVaultToken is the Vault token used by the secret store provider.
	// When unset, the provider falls back to the standard VAULT_TOKEN
	// resolution of the Vault client.
	EnvVaultToken = "PHIVAULT_VAULT_TOKEN"

	// EnvVaultMount is the KV v2 mount path. Default: secret
	EnvVaultMount = "PHIVAULT_VAULT_MOUNT"

	// EnvS3Bucket is the S3 bucket holding encrypted PHI blobs.
	EnvS3Bucket = "PHIVAULT_S3_BUCKET"

	// EnvAWSRegion is the AWS region for the blob store client. When unset,
	// the SDK's default resolution applies.
	EnvAWSRegion = "PHIVAULT_AWS_REGION"

	// EnvLedgerPath is the filesystem path of the consent ledger database.
	// Default: .phivault/ledger.db
	EnvLedgerPath = "PHIVAULT_LEDGER_PATH"

	// EnvSubledger is the subledger name consent entries are appended
	// under. Default: consent
	EnvSubledger = "PHIVAULT_SUBLEDGER"

	// EnvFGAAPIURL is the OpenFGA API endpoint.
	EnvFGAAPIURL = "PHIVAULT_FGA_API_URL"

	// EnvFGAStoreID is the OpenFGA store id.
	EnvFGAStoreID = "PHIVAULT_FGA_STORE_ID"

	// EnvFGAModelID is the OpenFGA authorization model id. Optional; when
	// unset the store's latest model is used.
	EnvFGAModelID = "PHIVAULT_FGA_MODEL_ID"
)

// Default values
const (
	// DefaultVaultMount is the default KV v2 mount path.
	DefaultVaultMount = "secret"

	// DefaultLedgerPath is the default location of the consent ledger
	// database.
	DefaultLedgerPath = ".phivault/ledger.db"

	// DefaultSubledger is the default subledger for consent entries.
	DefaultSubledger = "consent"

	// DefaultConsentPartition is the index partition consent pointers are
	// stored under.
	DefaultConsentPartition = "Consent"
)
