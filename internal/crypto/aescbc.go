// Package crypto implements the symmetric envelope primitives used by the
// vault: AES-256 key generation and CBC-mode encryption with PKCS#7 padding
// and an IV prefix.
//
// No authentication tag is computed; ciphertext integrity is not
// cryptographically verified. Callers that need tamper evidence must layer it
// elsewhere.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrTooShort indicates a ciphertext blob shorter than the IV prefix.
	ErrTooShort = errors.New("ciphertext shorter than IV")

	// ErrDecrypt indicates a key mismatch, corrupt ciphertext, or invalid padding.
	ErrDecrypt = errors.New("decryption failed")
)

// GenerateKey returns a fresh 256-bit key from a cryptographically secure
// random source.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext with the given key using AES-CBC and PKCS#7
// padding. A fresh random 128-bit IV is generated per call and prepended to
// the ciphertext, so encrypting identical plaintext twice never yields the
// same output.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decrypt splits the IV prefix from blob and decrypts the remainder with the
// given key. It fails with ErrTooShort if blob cannot contain an IV, and with
// ErrDecrypt on key mismatch, misaligned ciphertext, or invalid padding.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrTooShort, len(blob), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	iv, ciphertext := blob[:aes.BlockSize], blob[aes.BlockSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecrypt, len(ciphertext))
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, err := unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
