// Package langfile reads and writes legacy Minecraft .lang files
// (pre-1.13 mods, e.g. assets/<mod>/lang/en_US.lang).
//
// Format: key=value pairs, one per line. Only '=' separates key and value,
// since keys and values both may contain ':'. Lines starting with '#' are
// comments and are preserved verbatim, as are blank lines. A "#PARSE_ESCAPES"
// header is kept as a comment; values are stored and written as-is.
//
// The File type keeps the original line order so that writing a
// translation reproduces the source layout with translated values.
package langfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the legacy language file extension.
const Ext = ".lang"

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

type lineKind int

const (
	lineBlank   lineKind = iota // blank / whitespace-only line
	lineComment                 // comment line (starts with #)
	lineEntry                   // key=value pair
)

type line struct {
	kind  lineKind
	raw   string // original text (comment/blank)
	key   string // only for lineEntry
	value string // only for lineEntry; may be replaced by Set
}

// File is a parsed .lang file.
type File struct {
	lines []line
	// index maps key to its position in lines.
	index map[string]int
}

// New returns an empty file.
func New() *File {
	return &File{index: make(map[string]int)}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a .lang file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses .lang content.
func Parse(data []byte) (*File, error) {
	f := New()

	text := strings.TrimPrefix(string(data), "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	rawLines := strings.Split(text, "\n")

	// Drop trailing empty element from a file that ends with \n.
	if len(rawLines) > 0 && rawLines[len(rawLines)-1] == "" {
		rawLines = rawLines[:len(rawLines)-1]
	}

	for _, raw := range rawLines {
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			f.lines = append(f.lines, line{kind: lineBlank, raw: raw})

		case strings.HasPrefix(trimmed, "#"):
			f.lines = append(f.lines, line{kind: lineComment, raw: raw})

		default:
			k, v, ok := strings.Cut(trimmed, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				// Malformed line: keep it as a comment.
				f.lines = append(f.lines, line{kind: lineComment, raw: raw})
				continue
			}
			f.Add(k, v)
		}
	}

	return f, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Add appends an entry, or overwrites the value of an existing key in place.
func (f *File) Add(key, value string) {
	if idx, exists := f.index[key]; exists {
		f.lines[idx].value = value
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{kind: lineEntry, key: key, value: value})
}

// Keys returns all keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for _, ln := range f.lines {
		if ln.kind == lineEntry {
			keys = append(keys, ln.key)
		}
	}
	return keys
}

// Get returns the value for key and whether it was found.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok {
		return f.lines[idx].value, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file back to .lang format.
func (f *File) Marshal() []byte {
	var buf bytes.Buffer
	for _, ln := range f.lines {
		switch ln.kind {
		case lineBlank:
			buf.WriteByte('\n')
		case lineComment:
			buf.WriteString(ln.raw)
			buf.WriteByte('\n')
		case lineEntry:
			buf.WriteString(ln.key)
			buf.WriteByte('=')
			buf.WriteString(ln.value)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// WriteFile serialises and writes to path, creating parent directories
// with 0755 permissions.
func (f *File) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, f.Marshal(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
