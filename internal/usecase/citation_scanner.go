package usecase

import (
	"regexp"
	"strconv"
	"strings"
)

var citationMarker = regexp.MustCompile(`\[S(\d{1,4})\]`)

// maxPendingMarker bounds how much of an unterminated "[S..." tail is carried over.
const maxPendingMarker = len("[S9999]")

// citationScanner finds complete [Sn] markers in a token stream. Markers split across
// tokens are recognized once their closing bracket arrives.
type citationScanner struct {
	pending string
}

// feed returns the 1-based source numbers completed by token, in order of appearance.
func (s *citationScanner) feed(token string) []int {
	text := s.pending + token
	s.pending = ""

	var refs []int
	end := 0
	for _, m := range citationMarker.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err == nil {
			refs = append(refs, n)
		}
		end = m[1]
	}

	rest := text[end:]
	if i := strings.LastIndex(rest, "["); i >= 0 && len(rest)-i < maxPendingMarker {
		tail := rest[i:]
		if isMarkerPrefix(tail) {
			s.pending = tail
		}
	}
	return refs
}

// isMarkerPrefix reports whether tail could still grow into a marker.
func isMarkerPrefix(tail string) bool {
	if tail == "[" {
		return true
	}
	if tail[1] != 'S' {
		return false
	}
	for _, r := range tail[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
