package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for manifest and progress-log decoding.
var (
	// ErrManifestCorrupt indicates an existing manifest could not be decoded
	// into a list of integer triples.
	ErrManifestCorrupt = errors.New("manifest corrupt")

	// ErrProgressLogCorrupt indicates a progress log that still fails to
	// decode after truncation repair.
	ErrProgressLogCorrupt = errors.New("progress log corrupt")
)

// ParseError wraps a decoding failure with the artifact it came from.
type ParseError struct {
	// Source names the artifact (a key or path), if known.
	Source string

	// Kind is ErrManifestCorrupt or ErrProgressLogCorrupt.
	Kind error

	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap lets errors.Is match the Kind sentinel.
func (e *ParseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsManifestCorrupt reports whether err is (or wraps) ErrManifestCorrupt.
func IsManifestCorrupt(err error) bool {
	return errors.Is(err, ErrManifestCorrupt)
}

// IsProgressLogCorrupt reports whether err is (or wraps) ErrProgressLogCorrupt.
func IsProgressLogCorrupt(err error) bool {
	return errors.Is(err, ErrProgressLogCorrupt)
}

// ParseManifest decodes a manifest: a JSON array of [x, y, z] integer arrays.
//
// A manifest is written atomically before workers start, so any decode
// failure is reported as ErrManifestCorrupt.
func ParseManifest(data []byte, source string) (Set, error) {
	coords, err := decodeTriples(data)
	if err != nil {
		return nil, &ParseError{Source: source, Kind: ErrManifestCorrupt, Err: err}
	}
	return NewSet(coords...), nil
}

// RepairProgressLog recovers a JSON array from a progress log that may have
// been cut off mid-write.
//
// Everything after the last ']' is dropped and the remainder is wrapped in
// an enclosing '[' ... ']'. A log with no ']' at all repairs to "[]".
func RepairProgressLog(text string) string {
	end := strings.LastIndexByte(text, ']')
	return "[" + text[:end+1] + "]"
}

// ParseProgressLog repairs and decodes a progress log.
//
// Workers append entries as blocks finish, so the raw text is a list body
// such as "[0, 0, 0], [1, 0, 0], [2, 0". Bracketed variants that already
// carry their own outer list ("[[0,0,0],[1,0" ) are flattened one level.
func ParseProgressLog(data []byte, source string) (Set, error) {
	text := string(data)

	var outer []json.RawMessage
	if err := json.Unmarshal([]byte(RepairProgressLog(text)), &outer); err != nil {
		// A truncated log that opened its own list is left one ']' short
		// by the repair; close it instead of wrapping it.
		body := text[:strings.LastIndexByte(text, ']')+1]
		if json.Unmarshal([]byte(body+"]"), &outer) != nil {
			return nil, &ParseError{Source: source, Kind: ErrProgressLogCorrupt, Err: err}
		}
	}

	set := make(Set, len(outer))
	for i, raw := range outer {
		if c, err := decodeTriple(raw); err == nil {
			set.Add(c)
			continue
		}
		// A log written as a whole list nests one level deeper.
		inner, err := decodeTriples(raw)
		if err != nil {
			return nil, &ParseError{Source: source, Kind: ErrProgressLogCorrupt, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		for _, c := range inner {
			set.Add(c)
		}
	}
	return set, nil
}

func decodeTriples(data []byte) ([]Coord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	// null decodes into a nil slice without error.
	if raw == nil {
		return nil, errors.New("expected a JSON array, got null")
	}
	out := make([]Coord, 0, len(raw))
	for i, r := range raw {
		c, err := decodeTriple(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeTriple(data []byte) (Coord, error) {
	var vals []json.RawMessage
	if err := json.Unmarshal(data, &vals); err != nil {
		return Coord{}, err
	}
	if len(vals) != 3 {
		return Coord{}, fmt.Errorf("expected 3 integers, got %d", len(vals))
	}
	var c Coord
	for i, v := range vals {
		n, err := strconv.Atoi(string(bytes.TrimSpace(v)))
		if err != nil {
			return Coord{}, fmt.Errorf("coordinate %d: %s is not an integer", i, v)
		}
		c[i] = n
	}
	return c, nil
}
