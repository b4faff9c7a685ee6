// Package vaultkv implements phivault.SecretStore on HashiCorp Vault's KV v2
// secrets engine.
//
// The KV v2 engine must be enabled in Vault before use:
//
//	vault secrets enable -path=secret kv-v2
package vaultkv

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/phivault"
)

// Store implements phivault.SecretStore using Vault KV v2. Secrets are kept
// base64-encoded under a "value" key at
// "{mount}/data/phivault/keys/{name}"; the "/data/" segment is required by
// the KV v2 API.
type Store struct {
	client *api.Client
	mount  string
}

// Option configures a Store during construction.
type Option func(*Store)

// WithMount overrides the KV v2 mount path (default: secret).
func WithMount(mount string) Option {
	return func(s *Store) {
		s.mount = mount
	}
}

// New creates a Store talking to the Vault server at address. When token is
// empty, the client's standard VAULT_TOKEN resolution applies.
func New(address, token string, opts ...Option) (*Store, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient creates a Store over an existing Vault client.
func NewWithClient(client *api.Client, opts ...Option) *Store {
	s := &Store{client: client, mount: phivault.DefaultVaultMount}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) secretPath(name string) string {
	return fmt.Sprintf("%s/data/phivault/keys/%s", s.mount, name)
}

// GetSecret retrieves a secret by name, failing with phivault.ErrNotFound if
// the path holds no (or a deleted) secret.
func (s *Store) GetSecret(ctx context.Context, name string) ([]byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("reading secret %q from Vault: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: secret %q", phivault.ErrNotFound, name)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// Deleted KV v2 versions read back with nil data.
		return nil, fmt.Errorf("%w: secret %q", phivault.ErrNotFound, name)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: secret %q has no value", phivault.ErrNotFound, name)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding secret %q: %w", name, err)
	}
	return value, nil
}

// SetSecret stores a secret, creating a new KV v2 version if one already
// exists under that name.
func (s *Store) SetSecret(ctx context.Context, name string, value []byte) error {
	// KV v2 requires the payload to be wrapped in a "data" key.
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(value),
		},
	}
	if _, err := s.client.Logical().WriteWithContext(ctx, s.secretPath(name), payload); err != nil {
		return fmt.Errorf("writing secret %q to Vault: %w", name, err)
	}
	return nil
}

// DeleteSecret soft-deletes the latest version of the secret.
func (s *Store) DeleteSecret(ctx context.Context, name string) error {
	if _, err := s.client.Logical().DeleteWithContext(ctx, s.secretPath(name)); err != nil {
		return fmt.Errorf("deleting secret %q from Vault: %w", name, err)
	}
	return nil
}
