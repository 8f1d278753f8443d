package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *SignatureBlock {
	return &SignatureBlock{
		Signature:   "c2lnbmF0dXJlLWJ5dGVz",
		ContentHash: "aGFzaC1ieXRlcy1oYXNoLWJ5dGVzLWhhc2gtYnl0ZXM=",
		PublicKey:   `{"kty":"RSA","n":"AQAB","e":"AQAB"}`,
		Signer: SignerMetadata{
			Name:     "Alice Example",
			Location: "Warsaw",
			Reason:   "Contract approval",
			Contact:  "alice@example.com",
		},
		Filename:  "contract.pdf",
		SignedAt:  time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC),
		Algorithm: "RSA-PSS + SHA-256",
	}
}

func TestAnnotatePreservesContentHash(t *testing.T) {
	doc := buildTestPDF(t, "BT (agreement text) Tj ET", [][2]string{
		{"Author", "Original Author"},
	})
	original := Hash(doc)
	require.False(t, original.Fallback)

	annotated, err := Annotate(doc, testBlock())
	require.NoError(t, err)
	require.Greater(t, len(annotated), len(doc))
	assert.True(t, bytes.HasPrefix(annotated, doc), "original bytes must be preserved untouched")

	after := Hash(annotated)
	assert.False(t, after.Fallback, "annotated document must still parse")
	assert.Equal(t, original.B64, after.B64, "embedding must not move the content hash")
}

func TestAnnotateEmbedsExtractableBlock(t *testing.T) {
	doc := buildTestPDF(t, "BT (agreement text) Tj ET", nil)
	require.False(t, HasSignatureField(doc))

	block := testBlock()
	annotated, err := Annotate(doc, block)
	require.NoError(t, err)

	assert.True(t, HasSignatureField(annotated))

	extracted, err := ExtractSignatureBlock(annotated)
	require.NoError(t, err)
	assert.Equal(t, block.Signature, extracted.Signature)
	assert.Equal(t, block.ContentHash, extracted.ContentHash)
	assert.Equal(t, block.PublicKey, extracted.PublicKey)
	assert.Equal(t, block.Signer, extracted.Signer)
	assert.Equal(t, block.Filename, extracted.Filename)
	assert.Equal(t, block.Algorithm, extracted.Algorithm)
	assert.True(t, block.SignedAt.Equal(extracted.SignedAt))
}

func TestAnnotateSurvivesNonASCIIMetadata(t *testing.T) {
	doc := buildTestPDF(t, "BT (tekst umowy) Tj ET", nil)

	block := testBlock()
	block.Signer.Name = "Łukasz Żółć"
	block.Signer.Location = "Gdańsk (Pomorze)"

	annotated, err := Annotate(doc, block)
	require.NoError(t, err)

	extracted, err := ExtractSignatureBlock(annotated)
	require.NoError(t, err)
	assert.Equal(t, "Łukasz Żółć", extracted.Signer.Name)
	assert.Equal(t, "Gdańsk (Pomorze)", extracted.Signer.Location)
}

func TestAnnotatePlacesVisibleAnnotation(t *testing.T) {
	doc := buildTestPDF(t, "BT (page one) Tj ET", nil)

	annotated, err := Annotate(doc, testBlock())
	require.NoError(t, err)

	update := annotated[len(doc):]
	assert.Contains(t, string(update), "/Type /Annot")
	assert.Contains(t, string(update), "/Annots [")
	assert.Contains(t, string(update), "DIGITALLY SIGNED")
}

func TestAnnotateRejectsUnparseableInput(t *testing.T) {
	_, err := Annotate([]byte("not a pdf"), testBlock())
	assert.ErrorIs(t, err, ErrParse)
}

func TestAnnotateTwiceKeepsLatestBlock(t *testing.T) {
	doc := buildTestPDF(t, "BT (content) Tj ET", nil)

	first := testBlock()
	once, err := Annotate(doc, first)
	require.NoError(t, err)

	second := testBlock()
	second.Signer.Name = "Second Signer"
	twice, err := Annotate(once, second)
	require.NoError(t, err)

	extracted, err := ExtractSignatureBlock(twice)
	require.NoError(t, err)
	assert.Equal(t, "Second Signer", extracted.Signer.Name)

	after := Hash(twice)
	assert.False(t, after.Fallback)
	assert.Equal(t, Hash(doc).B64, after.B64)
}

func TestExtractSignatureBlockFromUnsignedDocument(t *testing.T) {
	doc := buildTestPDF(t, "BT (plain) Tj ET", [][2]string{{"Author", "Nobody"}})

	_, err := ExtractSignatureBlock(doc)
	assert.ErrorIs(t, err, ErrNoSignature)
}

func TestHasSignatureFieldOnGarbage(t *testing.T) {
	assert.False(t, HasSignatureField([]byte("garbage")))
}
