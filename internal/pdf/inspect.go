package pdf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pdflib "github.com/digitorus/pdf"
)

// InfoSignatureKey is the Info dictionary key carrying the structured
// signature block. Its presence marks a document as already signed.
const InfoSignatureKey = "Signature"

var (
	// ErrParse marks input that cannot be parsed as a PDF at all.
	ErrParse = errors.New("unable to parse PDF")
	// ErrNoSignature marks a document without an embedded signature block.
	ErrNoSignature = errors.New("no embedded signature block")
)

// SignerMetadata is the self-asserted identity attached to a signature.
// Every field is optional.
type SignerMetadata struct {
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// SignatureBlock is the canonical structured payload stored as a JSON blob
// under the /Signature Info key. The discrete viewer-facing Info keys
// written alongside it are cosmetic; this blob is authoritative.
type SignatureBlock struct {
	Signature   string         `json:"signature"`
	ContentHash string         `json:"content_hash"`
	PublicKey   string         `json:"public_key"`
	Signer      SignerMetadata `json:"signer"`
	Filename    string         `json:"filename,omitempty"`
	SignedAt    time.Time      `json:"signed_at"`
	Algorithm   string         `json:"algorithm"`
}

// HasSignatureField reports whether the document's Info dictionary carries
// the signature marker. Unparseable input reports false.
func HasSignatureField(data []byte) bool {
	info, err := infoDict(data)
	if err != nil {
		return false
	}
	return !info.Key(InfoSignatureKey).IsNull()
}

// ExtractSignatureBlock reads the embedded signature block back out of the
// Info dictionary.
func ExtractSignatureBlock(data []byte) (*SignatureBlock, error) {
	info, err := infoDict(data)
	if err != nil {
		return nil, err
	}

	raw := info.Key(InfoSignatureKey)
	if raw.IsNull() {
		return nil, ErrNoSignature
	}

	var block SignatureBlock
	if err := json.Unmarshal([]byte(raw.Text()), &block); err != nil {
		return nil, fmt.Errorf("malformed signature block: %w", err)
	}
	return &block, nil
}

func infoDict(data []byte) (v pdflib.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pdflib.Value{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return reader.Trailer().Key("Info"), nil
}
