package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

// Annotate embeds a signature block into a copy of the PDF by appending an
// incremental update: a replacement Info dictionary carrying the structured
// block plus viewer-facing metadata keys, and (best effort) a visible text
// annotation on the first page. The original bytes, including every page
// content stream, are preserved untouched, so the content hash of the
// annotated document equals the hash of the original.
//
// If the visible annotation cannot be placed the metadata-only result is
// returned; if the input cannot be parsed as a PDF at all the whole
// operation fails with ErrParse.
func Annotate(data []byte, block *SignatureBlock) ([]byte, error) {
	// The output must stay readable by the same parser the hasher uses.
	if _, err := infoDict(data); err != nil {
		return nil, err
	}

	objects := scanObjects(data)
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no indirect objects found", ErrParse)
	}
	rootRef, ok := findRootRef(data)
	if !ok {
		return nil, fmt.Errorf("%w: no document catalog reference", ErrParse)
	}
	prevXref, ok := lastStartXref(data)
	if !ok {
		return nil, fmt.Errorf("%w: no startxref marker", ErrParse)
	}

	maxNum := maxObjectNumber(objects)
	infoNum := maxNum + 1
	annotNum := maxNum + 2

	infoBody, err := buildInfoDict(block)
	if err != nil {
		return nil, err
	}

	updated := []scannedObject{{num: infoNum, gen: 0, body: infoBody}}
	nextNum := infoNum

	// Visible annotation is best effort: skipped when the first page cannot
	// be located or its /Annots array lives behind an indirect reference.
	if page, ok := findFirstPage(objects); ok {
		if patched, ok := patchPageAnnots(page.body, annotNum); ok {
			updated = append(updated,
				scannedObject{num: page.num, gen: page.gen, body: patched},
				scannedObject{num: annotNum, gen: 0, body: buildAnnotation(block)},
			)
			nextNum = annotNum
		}
	}

	return appendUpdateSection(data, updated, rootRef, infoNum, nextNum+1, prevXref), nil
}

// buildInfoDict renders the replacement Info dictionary. The /Signature
// JSON blob is the canonical payload; the remaining keys exist for PDF
// viewers and repeat a subset of it in plain text.
func buildInfoDict(block *SignatureBlock) ([]byte, error) {
	blob, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature block: %w", err)
	}

	signer := block.Signer
	author := signer.Name
	if author == "" {
		author = "Unknown"
	}
	reason := signer.Reason
	if reason == "" {
		reason = "Document Approval"
	}
	title := block.Filename
	if title == "" {
		title = "Signed Document"
	}

	var b bytes.Buffer
	b.WriteString("<<\n")
	writeInfoEntry(&b, "Author", author)
	writeInfoEntry(&b, "Subject", "Digitally Signed: "+reason)
	writeInfoEntry(&b, "Keywords",
		fmt.Sprintf("Digital Signature, %s, Signed by %s", block.Algorithm, author))
	writeInfoEntry(&b, "Creator", "PDF Digital Signature System")
	writeInfoEntry(&b, "Producer", "Projekt-PAI signature service")
	writeInfoEntry(&b, "Title", title)
	writeInfoEntry(&b, "SignedAt", block.SignedAt.UTC().Format("2006-01-02T15:04:05Z"))
	writeInfoEntry(&b, "SignerLocation", signer.Location)
	writeInfoEntry(&b, "SignerContact", signer.Contact)
	writeInfoEntry(&b, "SignatureAlgorithm", block.Algorithm)
	writeInfoEntry(&b, InfoSignatureKey, string(asciiJSON(blob)))
	b.WriteString(">>")
	return b.Bytes(), nil
}

func writeInfoEntry(b *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "/%s (%s)\n", key, escapeString(value))
}

// buildAnnotation renders the visible sticky-note annotation summarizing
// the signature on the first page.
func buildAnnotation(block *SignatureBlock) []byte {
	signer := block.Signer
	orDefault := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}

	sigPreview := block.Signature
	if len(sigPreview) > 60 {
		sigPreview = sigPreview[:60] + "..."
	}

	text := fmt.Sprintf(
		"DIGITALLY SIGNED\nSigner: %s\nDate: %s\nLocation: %s\nReason: %s\nContact: %s\nAlgorithm: %s\nSignature: %s\nDo not modify - the signature will become invalid.",
		orDefault(signer.Name),
		block.SignedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		orDefault(signer.Location),
		orDefault(signer.Reason),
		orDefault(signer.Contact),
		block.Algorithm,
		sigPreview,
	)

	var b bytes.Buffer
	b.WriteString("<<\n/Type /Annot\n/Subtype /Text\n/Rect [50 750 100 800]\n/Name /Comment\n/T (Digital Signature)\n/C [1 1 0]\n")
	fmt.Fprintf(&b, "/Contents (%s)\n>>", escapeString(text))
	return b.Bytes()
}

// patchPageAnnots rewrites a page dictionary body so its /Annots array also
// carries the new annotation reference. Returns false when the array is
// held indirectly, which the appended update cannot extend safely.
func patchPageAnnots(body []byte, annotNum int) ([]byte, bool) {
	ref := fmt.Sprintf("%d 0 R", annotNum)
	trimmed := bytes.TrimSpace(body)

	if loc := annotsOpenRE.FindIndex(trimmed); loc != nil {
		close := bytes.IndexByte(trimmed[loc[1]:], ']')
		if close < 0 {
			return nil, false
		}
		at := loc[1] + close
		patched := make([]byte, 0, len(trimmed)+len(ref)+1)
		patched = append(patched, trimmed[:at]...)
		patched = append(patched, ' ')
		patched = append(patched, ref...)
		patched = append(patched, trimmed[at:]...)
		return patched, true
	}

	if annotsRefRE.Match(trimmed) {
		return nil, false
	}

	end := bytes.LastIndex(trimmed, []byte(">>"))
	if end < 0 {
		return nil, false
	}
	patched := make([]byte, 0, len(trimmed)+len(ref)+16)
	patched = append(patched, trimmed[:end]...)
	patched = append(patched, []byte("/Annots ["+ref+"]\n")...)
	patched = append(patched, trimmed[end:]...)
	return patched, true
}

// appendUpdateSection writes the objects, the cross-reference subsections
// and the chained trailer after the original bytes.
func appendUpdateSection(data []byte, updated []scannedObject, rootRef string, infoNum, size int, prevXref int64) []byte {
	var out bytes.Buffer
	out.Grow(len(data) + 2048)
	out.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		out.WriteByte('\n')
	}

	sort.Slice(updated, func(i, j int) bool { return updated[i].num < updated[j].num })

	offsets := make(map[int]int)
	for _, obj := range updated {
		offsets[obj.num] = out.Len()
		fmt.Fprintf(&out, "%d %d obj\n", obj.num, obj.gen)
		out.Write(obj.body)
		out.WriteString("\nendobj\n")
	}

	xrefOffset := out.Len()
	out.WriteString("xref\n")
	for start := 0; start < len(updated); {
		end := start + 1
		for end < len(updated) && updated[end].num == updated[end-1].num+1 {
			end++
		}
		fmt.Fprintf(&out, "%d %d\n", updated[start].num, end-start)
		for _, obj := range updated[start:end] {
			fmt.Fprintf(&out, "%010d %05d n \n", offsets[obj.num], obj.gen)
		}
		start = end
	}

	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %s /Prev %d /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		size, rootRef, prevXref, infoNum, xrefOffset)

	return out.Bytes()
}

// escapeString escapes a value for a PDF literal string.
func escapeString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`(`, `\(`,
		`)`, `\)`,
		"\r", `\r`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// asciiJSON rewrites non-ASCII runes as \uXXXX escapes so the blob survives
// the PDFDocEncoding interpretation literal strings get on the way back out.
func asciiJSON(in []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(in))
	for _, r := range string(in) {
		switch {
		case r < 0x80:
			out.WriteRune(r)
		case r <= 0xFFFF:
			fmt.Fprintf(&out, `\u%04x`, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
		}
	}
	return out.Bytes()
}
