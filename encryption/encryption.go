// Package encryption implements the at-rest cipher for message content:
// AES-256-CBC with a fresh random IV per call, serialized as
// "hex(iv):hex(ciphertext)". The key is derived from the configured secret
// via PBKDF2, so rows are only readable with the same secret and KDF
// parameters they were written under.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 4096
)

// Key derivation salt. Fixed on purpose: the same SECRET_KEY must yield the
// same key across restarts or stored ciphertext becomes unreadable.
var kdfSalt = []byte("chat-relay.at-rest.v1")

type AES struct {
	key []byte
}

// NewAES derives a 256-bit key from the configured secret via PBKDF2-SHA256.
func NewAES(secret string) (*AES, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret key must not be empty")
	}
	return &AES{key: pbkdf2.Key([]byte(secret), kdfSalt, iterations, keyLength, sha256.New)}, nil
}

func (a *AES) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted), nil
}

func (a *AES) Decrypt(ciphertext string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return "", fmt.Errorf("ciphertext missing iv separator")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("decoding iv: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a block multiple", len(data))
	}

	block, err := aes.NewCipher(a.key)
	if err != nil {
		return "", err
	}

	decrypted := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, data)

	unpadded, err := unpad(decrypted)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// PKCS#7
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
