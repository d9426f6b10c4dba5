package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// columnKeyInfo is the HKDF info string for the column AEAD key derived from DATA_ENCRYPTION_KEY.
const columnKeyInfo = "clinic/column-encryption/v1"

// sealedPrefix marks values written by a configured Cipher so plaintext rows from an unkeyed dev database still read.
var sealedPrefix = []byte("gcm1:")

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Cipher seals sensitive columns such as bank account numbers with AES-256-GCM.
// Without a key it passes values through unchanged.
type Cipher struct {
	aead cipher.AEAD
}

func New(key string) (*Cipher, error) {
	if key == "" {
		return &Cipher{}, nil
	}
	decoded, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding")
	}
	columnKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, decoded, nil, []byte(columnKeyInfo)), columnKey); err != nil {
		return nil, fmt.Errorf("derive column key: %w", err)
	}
	block, err := aes.NewCipher(columnKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Configured() bool {
	return c != nil && c.aead != nil
}

func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !c.Configured() {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := append([]byte{}, sealedPrefix...)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plain, nil), nil
}

func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < len(sealedPrefix) || string(sealed[:len(sealedPrefix)]) != string(sealedPrefix) {
		return sealed, nil
	}
	if !c.Configured() {
		return nil, errors.New("encrypted value found but DATA_ENCRYPTION_KEY is not set")
	}
	body := sealed[len(sealedPrefix):]
	if len(body) < c.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce := body[:c.aead.NonceSize()]
	return c.aead.Open(nil, nonce, body[c.aead.NonceSize():], nil)
}

func (c *Cipher) SealString(value string) ([]byte, error) {
	return c.Seal([]byte(value))
}

func (c *Cipher) OpenString(value []byte) (string, error) {
	plain, err := c.Open(value)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Last4 returns the trailing four characters used for masked display.
func Last4(value string) string {
	if len(value) <= 4 {
		return value
	}
	return value[len(value)-4:]
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		decoded, err := hex.DecodeString(raw)
		if err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	return []byte(raw), nil
}
