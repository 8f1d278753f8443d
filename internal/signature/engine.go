package signature

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SaltLength is the fixed RSA-PSS salt length. Signer and verifier must
// agree on it, so it is pinned rather than derived from the key size.
const SaltLength = 32

// Algorithm names the scheme in human-readable output and PDF metadata.
const Algorithm = "RSA-PSS + SHA-256"

type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonSignatureInvalid   Reason = "signature_invalid"
	ReasonMalformedKey       Reason = "malformed_key"
	ReasonMalformedSignature Reason = "malformed_signature"
	ReasonMalformedHash      Reason = "malformed_hash"
	ReasonNotSigned          Reason = "not_signed"
	ReasonInternal           Reason = "internal_error"
)

// Outcome is the structured result of a verification. "Not valid" is an
// expected answer, not an error; Verify never returns an error value.
type Outcome struct {
	Valid  bool
	Reason Reason
	Detail string
}

func invalid(reason Reason, detail string) Outcome {
	return Outcome{Valid: false, Reason: reason, Detail: detail}
}

// Verify checks an RSA-PSS signature over a content hash. The content hash
// bytes are the signed message: PSS hashes them again with SHA-256 before
// the padding check, matching what signing clients produce.
func Verify(signatureB64, publicKeyJSON, contentHashB64 string) Outcome {
	sig, err := DecodeSignature(signatureB64)
	if err != nil {
		return invalid(ReasonMalformedSignature, err.Error())
	}

	pub, err := DecodePublicKey(publicKeyJSON)
	if err != nil {
		return invalid(ReasonMalformedKey, err.Error())
	}

	hashBytes, err := base64.StdEncoding.DecodeString(contentHashB64)
	if err != nil {
		return invalid(ReasonMalformedHash, err.Error())
	}
	if len(hashBytes) != sha256.Size {
		return invalid(ReasonMalformedHash,
			fmt.Sprintf("content hash must be %d bytes, got %d", sha256.Size, len(hashBytes)))
	}

	digest := sha256.Sum256(hashBytes)
	opts := &rsa.PSSOptions{SaltLength: SaltLength, Hash: crypto.SHA256}

	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, opts); err != nil {
		return invalid(ReasonSignatureInvalid, "signature does not match content hash")
	}

	return Outcome{Valid: true, Reason: ReasonOK}
}
