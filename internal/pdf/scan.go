package pdf

// Raw-byte scanning for the incremental writer. The annotator appends an
// update section instead of rewriting the file, which needs the object
// numbers and cross-reference chain of the original regardless of whether
// its xref data is well formed, so these helpers work on the bytes directly
// rather than through the parser.

import (
	"bytes"
	"regexp"
	"strconv"
)

var (
	objHeaderRE  = regexp.MustCompile(`(?m)^[ \t]*(\d+)[ \t]+(\d+)[ \t]+obj\b`)
	rootRefRE    = regexp.MustCompile(`/Root[ \t\r\n]+(\d+)[ \t\r\n]+(\d+)[ \t\r\n]+R`)
	startXrefRE  = regexp.MustCompile(`startxref[ \t\r\n]+(\d+)`)
	pageTypeRE   = regexp.MustCompile(`/Type[ \t\r\n]*/Page([^s0-9A-Za-z]|$)`)
	annotsRefRE  = regexp.MustCompile(`/Annots[ \t\r\n]+\d+[ \t\r\n]+\d+[ \t\r\n]+R`)
	annotsOpenRE = regexp.MustCompile(`/Annots[ \t\r\n]*\[`)
)

type scannedObject struct {
	num  int
	gen  int
	body []byte
}

// scanObjects returns every indirect object in file order. Later
// definitions of the same object number replace earlier ones, matching how
// incremental updates shadow previous revisions.
func scanObjects(data []byte) map[int]scannedObject {
	objects := make(map[int]scannedObject)

	for _, loc := range objHeaderRE.FindAllSubmatchIndex(data, -1) {
		num, err := strconv.Atoi(string(data[loc[2]:loc[3]]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(data[loc[4]:loc[5]]))
		if err != nil {
			continue
		}

		bodyStart := loc[1]
		end := bytes.Index(data[bodyStart:], []byte("endobj"))
		if end < 0 {
			continue
		}

		objects[num] = scannedObject{
			num:  num,
			gen:  gen,
			body: data[bodyStart : bodyStart+end],
		}
	}

	return objects
}

func maxObjectNumber(objects map[int]scannedObject) int {
	max := 0
	for num := range objects {
		if num > max {
			max = num
		}
	}
	return max
}

// findRootRef returns the catalog reference from the most recent trailer,
// serialized as it should appear in the new trailer ("N G R").
func findRootRef(data []byte) (string, bool) {
	matches := rootRefRE.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return "", false
	}
	last := matches[len(matches)-1]
	return string(last[1]) + " " + string(last[2]) + " R", true
}

// lastStartXref returns the offset of the most recent cross-reference
// section, used as /Prev when chaining the appended update.
func lastStartXref(data []byte) (int64, bool) {
	matches := startXrefRE.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0, false
	}
	offset, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return offset, true
}

// findFirstPage picks the page object the visible annotation goes on. The
// lowest-numbered /Type /Page object is a heuristic for the first page of
// the tree; annotation placement is best-effort, so a miss only costs the
// visible marker.
func findFirstPage(objects map[int]scannedObject) (scannedObject, bool) {
	best := scannedObject{num: -1}
	for _, obj := range objects {
		if !pageTypeRE.Match(obj.body) {
			continue
		}
		if best.num < 0 || obj.num < best.num {
			best = obj
		}
	}
	return best, best.num >= 0
}
