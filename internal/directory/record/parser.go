package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Skip says why a line produced no record.
type Skip int

const (
	SkipNone Skip = iota
	SkipBlank
	SkipMalformed
	SkipMissingID
)

func (s Skip) String() string {
	switch s {
	case SkipNone:
		return "none"
	case SkipBlank:
		return "blank"
	case SkipMalformed:
		return "malformed"
	case SkipMissingID:
		return "missing_id"
	default:
		return "unknown"
	}
}

// maxLineBytes bounds a single record line. Long "about" texts run to a few
// hundred KiB in real exports.
const maxLineBytes = 16 << 20

// Parse turns one line into a Record. It never fails: anything that is not
// a JSON object of the record shape, or that lacks an identifier, is
// reported as a Skip. The identifier is stored trimmed.
func Parse(line []byte) (*Record, Skip) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, SkipBlank
	}
	if line[0] != '{' {
		return nil, SkipMalformed
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, SkipMalformed
	}
	rec.SourceID = strings.TrimSpace(rec.SourceID)
	if rec.SourceID == "" {
		return nil, SkipMissingID
	}
	return &rec, SkipNone
}

// Scanner reads records from JSONL input, skipping bad lines.
type Scanner struct {
	sc     *bufio.Scanner
	line   int
	rec    *Record
	skips  map[Skip]int
	onSkip func(line int, reason Skip)
}

// NewScanner wraps r. onSkip, if non-nil, is called for every dropped line.
func NewScanner(r io.Reader, onSkip func(line int, reason Skip)) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Scanner{
		sc:     sc,
		skips:  make(map[Skip]int),
		onSkip: onSkip,
	}
}

// Next advances to the next valid record. It returns false at EOF or on a
// read error; check Err afterwards.
func (s *Scanner) Next() bool {
	for s.sc.Scan() {
		s.line++
		rec, skip := Parse(s.sc.Bytes())
		if skip != SkipNone {
			s.skips[skip]++
			if s.onSkip != nil && skip != SkipBlank {
				s.onSkip(s.line, skip)
			}
			continue
		}
		s.rec = rec
		return true
	}
	s.rec = nil
	return false
}

// Record returns the record produced by the last successful Next.
func (s *Scanner) Record() *Record { return s.rec }

// Lines is the number of lines consumed so far.
func (s *Scanner) Lines() int { return s.line }

// Skipped returns per-reason counts of dropped lines.
func (s *Scanner) Skipped() map[Skip]int {
	out := make(map[Skip]int, len(s.skips))
	for k, v := range s.skips {
		out[k] = v
	}
	return out
}

func (s *Scanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", s.line+1, err)
	}
	return nil
}
