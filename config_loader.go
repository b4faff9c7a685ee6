package phivault

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from PHIVAULT_* environment
// variables, reading a .env file first if one is present in the working
// directory.
//
// Required environment variables:
//   - PHIVAULT_VAULT_ADDR: HashiCorp Vault address
//   - PHIVAULT_S3_BUCKET: S3 bucket for encrypted PHI blobs
//   - PHIVAULT_FGA_API_URL: OpenFGA API endpoint
//   - PHIVAULT_FGA_STORE_ID: OpenFGA store id
//
// Optional variables (defaults applied by Validate):
//   - PHIVAULT_VAULT_TOKEN, PHIVAULT_VAULT_MOUNT, PHIVAULT_AWS_REGION,
//     PHIVAULT_LEDGER_PATH, PHIVAULT_SUBLEDGER, PHIVAULT_FGA_MODEL_ID
func LoadConfigFromEnvironment() (Config, error) {
	// A missing .env file is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := Config{
		VaultAddress: os.Getenv(EnvVaultAddress),
		VaultToken:   os.Getenv(EnvVaultToken),
		VaultMount:   os.Getenv(EnvVaultMount),
		S3Bucket:     os.Getenv(EnvS3Bucket),
		AWSRegion:    os.Getenv(EnvAWSRegion),
		LedgerPath:   os.Getenv(EnvLedgerPath),
		Subledger:    os.Getenv(EnvSubledger),
		FGAAPIURL:    os.Getenv(EnvFGAAPIURL),
		FGAStoreID:   os.Getenv(EnvFGAStoreID),
		FGAModelID:   os.Getenv(EnvFGAModelID),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads configuration from a YAML file and validates it.
func LoadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %q: %v", ErrInvalidConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
