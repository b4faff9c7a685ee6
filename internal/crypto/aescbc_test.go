package crypto

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "empty", plaintext: []byte{}},
		{name: "short", plaintext: []byte(`{"a":1}`)},
		{name: "block aligned", plaintext: make([]byte, aes.BlockSize*4)},
		{name: "large", plaintext: make([]byte, 1<<16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.plaintext, key)
			require.NoError(t, err)

			got, err := Decrypt(blob, key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte(`{"fullName":"Jane Doe"}`)
	first, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	second, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "identical plaintext must never produce identical ciphertext")

	for _, blob := range [][]byte{first, second} {
		got, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDecryptTooShort(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, err = Decrypt(make([]byte, aes.BlockSize-1), key)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestDecryptWrongKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	wrong, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte(`{"a":1}`)
	blob, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	// A wrong key almost always trips the padding check; on the rare
	// decode where the garbage happens to end in valid padding, the
	// plaintext still cannot survive.
	got, err := Decrypt(blob, wrong)
	if err != nil {
		assert.ErrorIs(t, err, ErrDecrypt)
	} else {
		assert.NotEqual(t, plaintext, got)
	}
}

func TestDecryptCorruptCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	blob, err := Encrypt([]byte(`{"a":1}`), key)
	require.NoError(t, err)

	// Truncate to a non-block-aligned ciphertext.
	_, err = Decrypt(blob[:len(blob)-1], key)
	assert.ErrorIs(t, err, ErrDecrypt)

	// Strip every ciphertext block, leaving only the IV.
	_, err = Decrypt(blob[:aes.BlockSize], key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptInvalidKeySize(t *testing.T) {
	blob, err := Encrypt([]byte(`{"a":1}`), make([]byte, KeySize))
	require.NoError(t, err)

	_, err = Decrypt(blob, make([]byte, 5))
	assert.ErrorIs(t, err, ErrDecrypt)
}
