// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// SignatureHeader carries the base64 RSA-SHA256 signature of the manifest body.
const SignatureHeader = "X-Manifest-Signature"

const maxManifestBytes = 64 << 10

// ErrUnsigned is returned when a public key is configured but the response has no signature.
var ErrUnsigned = errors.New("manifest is not signed")

// Fetch downloads and validates the manifest at url. When publicKeyPEM is set the
// body must carry a valid signature.
func Fetch(ctx context.Context, client *http.Client, url, publicKeyPEM, userAgent string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if publicKeyPEM != "" {
		sig := resp.Header.Get(SignatureHeader)
		if sig == "" {
			return nil, ErrUnsigned
		}
		if err := verifySignature(body, sig, publicKeyPEM); err != nil {
			return nil, fmt.Errorf("signature verification failed: %w", err)
		}
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse manifest JSON: %w", err)
	}
	if m.Version == 0 {
		return nil, errors.New("invalid manifest: missing version field")
	}
	m.HTTP = m.HTTP.WithDefaults()
	return &m, nil
}

// verifySignature validates the RSA-SHA256 PKCS#1 v1.5 signature of body.
func verifySignature(body []byte, signatureB64, publicKeyPEM string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return errors.New("failed to parse PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("not an RSA public key")
	}

	hash := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(rsaPubKey, crypto.SHA256, hash[:], sig); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}
	return nil
}
