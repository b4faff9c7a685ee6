package phivault

import (
	"fmt"

	"github.com/hengadev/errsx"
)

// Config holds the provider configuration needed to wire a complete store:
// secret store, blob store, consent ledger, and policy engine.
//
// This struct contains only data, no behavior. It can be loaded from the
// environment (LoadConfigFromEnvironment), from a YAML file
// (LoadConfigFromFile), or populated in code.
type Config struct {
	// VaultAddress is the HashiCorp Vault server holding record keys.
	// Required.
	VaultAddress string `yaml:"vault_address"`

	// VaultToken authenticates the Vault client. Optional; when empty the
	// client's standard token resolution applies.
	VaultToken string `yaml:"vault_token"`

	// VaultMount is the KV v2 mount path. Default: secret
	VaultMount string `yaml:"vault_mount"`

	// S3Bucket holds the encrypted PHI blobs. Required.
	S3Bucket string `yaml:"s3_bucket"`

	// AWSRegion is the region for the blob store client. Optional.
	AWSRegion string `yaml:"aws_region"`

	// LedgerPath is the filesystem path of the consent ledger database.
	// Default: .phivault/ledger.db
	LedgerPath string `yaml:"ledger_path"`

	// Subledger names the chain consent entries are appended under.
	// Default: consent
	Subledger string `yaml:"subledger"`

	// FGAAPIURL is the OpenFGA API endpoint. Required.
	FGAAPIURL string `yaml:"fga_api_url"`

	// FGAStoreID is the OpenFGA store id. Required.
	FGAStoreID string `yaml:"fga_store_id"`

	// FGAModelID pins the OpenFGA authorization model. Optional.
	FGAModelID string `yaml:"fga_model_id"`
}

// Validate checks required fields and applies defaults for the optional
// ones. All missing fields are reported together.
func (c *Config) Validate() error {
	errs := make(errsx.Map)
	if c.VaultAddress == "" {
		errs.Set("vault_address", "vault address is required")
	}
	if c.S3Bucket == "" {
		errs.Set("s3_bucket", "S3 bucket is required")
	}
	if c.FGAAPIURL == "" {
		errs.Set("fga_api_url", "OpenFGA API URL is required")
	}
	if c.FGAStoreID == "" {
		errs.Set("fga_store_id", "OpenFGA store id is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errs)
	}

	if c.VaultMount == "" {
		c.VaultMount = DefaultVaultMount
	}
	if c.LedgerPath == "" {
		c.LedgerPath = DefaultLedgerPath
	}
	if c.Subledger == "" {
		c.Subledger = DefaultSubledger
	}
	return nil
}
