// Package signature implements the detached-signature core: the transport
// codec for RSA public keys and signature bytes, and RSA-PSS verification.
// Signing never happens here; private keys stay with the client.
package signature

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const KeyTypeRSA = "RSA"

var (
	ErrMalformedKey       = errors.New("malformed public key")
	ErrMissingKeyField    = errors.New("public key missing required field")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrMalformedSignature = errors.New("malformed signature encoding")
)

// PublicKey is the wire form of an RSA public key: JWK-style field names,
// modulus and exponent as unpadded URL-safe base64 big-endian integers.
type PublicKey struct {
	KeyType string `json:"kty"`
	N       string `json:"n"`
	E       string `json:"e"`
}

// EncodePublicKey renders an RSA public key in its transport form.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 || pub.E <= 0 {
		return "", ErrMalformedKey
	}

	key := PublicKey{
		KeyType: KeyTypeRSA,
		N:       base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:       base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}

	out, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodePublicKey parses the transport form back into an RSA public key.
// Both padded and unpadded base64url values are accepted; a declared key
// type other than RSA is rejected.
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	var key PublicKey
	if err := json.Unmarshal([]byte(encoded), &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	if key.KeyType == "" || key.N == "" || key.E == "" {
		return nil, ErrMissingKeyField
	}
	if key.KeyType != KeyTypeRSA {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, key.KeyType)
	}

	n, err := decodeBase64URLUInt(key.N)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrMalformedKey, err)
	}
	e, err := decodeBase64URLUInt(key.E)
	if err != nil {
		return nil, fmt.Errorf("%w: exponent: %v", ErrMalformedKey, err)
	}
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 1 {
		return nil, fmt.Errorf("%w: degenerate key components", ErrMalformedKey)
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// decodeBase64URLUInt decodes a big-endian unsigned integer from base64url
// text, normalizing padding and the standard-alphabet variants first.
func decodeBase64URLUInt(s string) (*big.Int, error) {
	s = strings.TrimRight(s, "=")
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty integer")
	}
	return new(big.Int).SetBytes(raw), nil
}

// EncodeSignature renders raw signature bytes as standard base64.
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// DecodeSignature parses a base64 signature, tolerating missing padding.
func DecodeSignature(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMalformedSignature
	}

	trimmed := strings.TrimRight(encoded, "=")
	raw, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return raw, nil
}
