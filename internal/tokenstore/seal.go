// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"wayfare/cli/internal/keychain"
)

const (
	secretSize    = 32
	kdfIterations = 100000
)

var kdfSalt = []byte("wayfare-tokenstore-v1")

// sealer encrypts values with AES-256-GCM. The key slot name is bound as
// additional data, so a value copied into another slot fails to open.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal returns base64(nonce || ciphertext).
func (s *sealer) seal(slot string, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, plain, []byte(slot))
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(ct)))
	base64.RawStdEncoding.Encode(out, ct)
	return out, nil
}

func (s *sealer) open(slot string, sealed []byte) ([]byte, error) {
	payload := make([]byte, base64.RawStdEncoding.DecodedLen(len(sealed)))
	n, err := base64.RawStdEncoding.Decode(payload, sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	payload = payload[:n]
	ns := s.aead.NonceSize()
	if len(payload) < ns {
		return nil, errors.New("sealed value is too short")
	}
	plain, err := s.aead.Open(nil, payload[:ns], payload[ns:], []byte(slot))
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed value: %w", err)
	}
	return plain, nil
}

// loadOrCreateSecret returns the device secret from ring, generating and storing
// a fresh one on first use.
func loadOrCreateSecret(ring keychain.Store) ([]byte, error) {
	enc, err := ring.Get(KeyDataKey)
	if err == nil {
		secret, derr := base64.StdEncoding.DecodeString(string(enc))
		if derr == nil && len(secret) == secretSize {
			return secret, nil
		}
		// Unusable secret: everything sealed under it is unreadable anyway.
	} else if !errors.Is(err, keychain.ErrNotFound) {
		return nil, err
	}

	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generate device secret: %w", err)
	}
	if err := ring.Set(KeyDataKey, []byte(base64.StdEncoding.EncodeToString(secret))); err != nil {
		return nil, err
	}
	return secret, nil
}

func deriveKey(secret []byte) []byte {
	return pbkdf2.Key(secret, kdfSalt, kdfIterations, 32, sha256.New)
}
