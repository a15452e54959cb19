// Package secrets seals per-tenant secret maps (upstream API keys) at rest.
// Blob format, version 1: 0x01 | nonce | AES-256-GCM ciphertext, the key being
// sha256(ENCRYPTION_KEY). Without a key the blob is plain JSON.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

const version1 byte = 0x01

var (
	ErrInvalidBlob        = errors.New("invalid secrets blob")
	ErrUnsupportedVersion = errors.New("unsupported secrets blob version")
)

// Box encrypts and decrypts secret maps with a fixed key.
type Box struct {
	key []byte
}

func NewBox(key string) *Box {
	return &Box{key: []byte(key)}
}

func (b *Box) gcm() (cipher.AEAD, error) {
	h := sha256.Sum256(b.key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal marshals v and encrypts it when the box has a key.
func (b *Box) Seal(v map[string]string) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b.key) == 0 {
		return plain, nil
	}
	gcm, err := b.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, version1)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plain, nil), nil
}

// Open reverses Seal. A keyless box only accepts plain JSON blobs.
func (b *Box) Open(blob []byte) (map[string]string, error) {
	if len(blob) == 0 {
		return map[string]string{}, nil
	}
	if blob[0] == '{' {
		return decode(blob)
	}
	if len(b.key) == 0 {
		return nil, fmt.Errorf("%w: encrypted blob but no key configured", ErrInvalidBlob)
	}
	if blob[0] != version1 {
		return nil, ErrUnsupportedVersion
	}
	gcm, err := b.gcm()
	if err != nil {
		return nil, err
	}
	if len(blob) < 1+gcm.NonceSize() {
		return nil, fmt.Errorf("%w: short nonce", ErrInvalidBlob)
	}
	nonce := blob[1 : 1+gcm.NonceSize()]
	plain, err := gcm.Open(nil, nonce, blob[1+gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	return decode(plain)
}

func decode(raw []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
