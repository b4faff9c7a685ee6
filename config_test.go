package phivault_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/phivault"
)

func validConfig() phivault.Config {
	return phivault.Config{
		VaultAddress: "https://vault.internal:8200",
		S3Bucket:     "phi-records",
		FGAAPIURL:    "http://localhost:8080",
		FGAStoreID:   "01HXYZ",
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, phivault.DefaultVaultMount, cfg.VaultMount)
	assert.Equal(t, phivault.DefaultLedgerPath, cfg.LedgerPath)
	assert.Equal(t, phivault.DefaultSubledger, cfg.Subledger)
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	cfg := validConfig()
	cfg.VaultMount = "kv"
	cfg.LedgerPath = "/var/lib/phivault/ledger.db"
	cfg.Subledger = "consent-v2"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "kv", cfg.VaultMount)
	assert.Equal(t, "/var/lib/phivault/ledger.db", cfg.LedgerPath)
	assert.Equal(t, "consent-v2", cfg.Subledger)
}

func TestConfigValidateReportsAllMissingFields(t *testing.T) {
	var cfg phivault.Config
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, phivault.ErrInvalidConfiguration)

	// Every missing required field is named in the one error.
	for _, field := range []string{"vault_address", "s3_bucket", "fga_api_url", "fga_store_id"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestConfigValidateSingleMissingField(t *testing.T) {
	cfg := validConfig()
	cfg.FGAStoreID = ""
	err := cfg.Validate()
	require.ErrorIs(t, err, phivault.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "fga_store_id")
	assert.NotContains(t, err.Error(), "vault_address")
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(phivault.EnvVaultAddress, "https://vault.internal:8200")
	t.Setenv(phivault.EnvVaultToken, "s.token")
	t.Setenv(phivault.EnvS3Bucket, "phi-records")
	t.Setenv(phivault.EnvFGAAPIURL, "http://localhost:8080")
	t.Setenv(phivault.EnvFGAStoreID, "01HXYZ")
	t.Setenv(phivault.EnvSubledger, "consent-v2")

	cfg, err := phivault.LoadConfigFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "https://vault.internal:8200", cfg.VaultAddress)
	assert.Equal(t, "s.token", cfg.VaultToken)
	assert.Equal(t, "phi-records", cfg.S3Bucket)
	assert.Equal(t, "http://localhost:8080", cfg.FGAAPIURL)
	assert.Equal(t, "01HXYZ", cfg.FGAStoreID)
	assert.Equal(t, "consent-v2", cfg.Subledger)
	assert.Equal(t, phivault.DefaultVaultMount, cfg.VaultMount)
}

func TestLoadConfigFromEnvironmentIncomplete(t *testing.T) {
	t.Setenv(phivault.EnvVaultAddress, "https://vault.internal:8200")
	t.Setenv(phivault.EnvS3Bucket, "")
	t.Setenv(phivault.EnvFGAAPIURL, "")
	t.Setenv(phivault.EnvFGAStoreID, "")

	_, err := phivault.LoadConfigFromEnvironment()
	assert.ErrorIs(t, err, phivault.ErrInvalidConfiguration)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phivault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault_address: https://vault.internal:8200
vault_mount: kv
s3_bucket: phi-records
aws_region: eu-west-1
fga_api_url: http://localhost:8080
fga_store_id: 01HXYZ
`), 0o600))

	cfg, err := phivault.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://vault.internal:8200", cfg.VaultAddress)
	assert.Equal(t, "kv", cfg.VaultMount)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, phivault.DefaultLedgerPath, cfg.LedgerPath)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := phivault.LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phivault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vault_address: [unterminated"), 0o600))

	_, err := phivault.LoadConfigFromFile(path)
	assert.ErrorIs(t, err, phivault.ErrInvalidConfiguration)
}
