package vaultkv

import (
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretPath(t *testing.T) {
	client, err := api.NewClient(api.DefaultConfig())
	require.NoError(t, err)

	s := NewWithClient(client)
	assert.Equal(t, "secret/data/phivault/keys/key-abc", s.secretPath("key-abc"))

	s = NewWithClient(client, WithMount("kv"))
	assert.Equal(t, "kv/data/phivault/keys/key-abc", s.secretPath("key-abc"))
}
