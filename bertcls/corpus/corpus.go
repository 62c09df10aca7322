// Package corpus reads the tab-separated training corpus and the label-name
// side file.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMalformedLine = errors.New("malformed corpus line")
	ErrEmptyLabels   = errors.New("label file has no labels")
)

// maxLineBytes bounds a single corpus line.
const maxLineBytes = 4 * 1024 * 1024

// Record is one labeled sentence.
type Record struct {
	Label int
	Text  string
}

// ParseLine splits a corpus line on tabs. Field 0 is the integer label and
// field 2 the text; field 1 is ignored.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("%w: expected at least 3 tab-separated fields, got %d", ErrMalformedLine, len(fields))
	}
	label, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Record{}, fmt.Errorf("%w: label %q is not an integer", ErrMalformedLine, fields[0])
	}
	return Record{Label: label, Text: fields[2]}, nil
}

// Read parses every non-empty line of r into parallel text and label slices.
func Read(r io.Reader) (sentsSrc []string, sentsTgt []int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sentsSrc = append(sentsSrc, rec.Text)
		sentsTgt = append(sentsTgt, rec.Label)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan corpus: %w", err)
	}
	return sentsSrc, sentsTgt, nil
}

// ReadCorpus reads the corpus file at path.
func ReadCorpus(path string) ([]string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer f.Close()

	src, tgt, err := Read(f)
	if err != nil {
		return nil, nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return src, tgt, nil
}
