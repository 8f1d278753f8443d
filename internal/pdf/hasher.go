// Package pdf derives metadata-independent content hashes from PDF files
// and embeds signature metadata into them without touching page content.
package pdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"

	pdflib "github.com/digitorus/pdf"
)

// Digest is a content hash in its transport encoding. Fallback marks a
// degraded hash computed over the raw byte string because the PDF could not
// be parsed; fallback hashes do not carry the metadata-independence
// guarantee and change whenever any byte of the file changes.
type Digest struct {
	B64      string
	Fallback bool
}

// Hash computes the canonical content hash of a PDF: SHA-256 over a
// deterministic re-serialization of the page tree restricted to page
// content. Document metadata and annotations are excluded, so embedding a
// signature block afterwards does not invalidate the hash it was produced
// over. Malformed input degrades to a flagged raw-bytes hash.
func Hash(data []byte) Digest {
	sum, err := contentDigest(data)
	if err != nil {
		raw := sha256.Sum256(data)
		return Digest{B64: base64.StdEncoding.EncodeToString(raw[:]), Fallback: true}
	}
	return Digest{B64: base64.StdEncoding.EncodeToString(sum)}
}

// contentDigest walks the page tree and hashes, per page: the page index,
// the effective media box, and the decoded content streams, in order. The
// parser panics on some malformed files; that is folded into the error.
func contentDigest(data []byte) (sum []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.New("pdf has no pages")
	}

	h := sha256.New()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fmt.Fprintf(h, "page %d\n", i)
		hashMediaBox(h, page.V)
		hashContents(h, page.V.Key("Contents"))
	}

	return h.Sum(nil), nil
}

// hashMediaBox writes the page's effective media box, walking up the page
// tree for the inherited value. Depth is bounded to guard against cyclic
// parent references.
func hashMediaBox(h hash.Hash, page pdflib.Value) {
	v := page
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdflib.Array {
			for i := 0; i < box.Len(); i++ {
				fmt.Fprintf(h, "%g ", box.Index(i).Float64())
			}
			fmt.Fprintln(h)
			return
		}
		v = v.Key("Parent")
	}
}

// hashContents writes the decoded bytes of the page's content stream(s).
func hashContents(h hash.Hash, contents pdflib.Value) {
	switch contents.Kind() {
	case pdflib.Stream:
		io.Copy(h, contents.Reader())
	case pdflib.Array:
		for i := 0; i < contents.Len(); i++ {
			if part := contents.Index(i); part.Kind() == pdflib.Stream {
				io.Copy(h, part.Reader())
			}
		}
	}
}
