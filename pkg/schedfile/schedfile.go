// Package schedfile reads and writes schedule documents. The engine itself
// defines no on-disk format; this is the surrounding tooling's YAML layout:
//
//	timeout: 5s
//	steps:
//	  - A:1
//	  - B:1
//	  - A:2
//
// Steps are compact "name:ordinal" strings. The last colon separates the
// ordinal, so names may themselves contain colons.
package schedfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirkhaki/lockstep/pkg/lockstep"
)

// Document is a parsed schedule file.
type Document struct {
	// Timeout is the per-wait bound to arm the engine with; zero means the
	// engine default.
	Timeout time.Duration
	Steps   lockstep.Schedule
}

// Options returns the engine options the document carries, ready to pass to
// lockstep.NewEngine. A document without a timeout yields none, leaving the
// engine default in place.
func (d *Document) Options() []lockstep.Option {
	var opts []lockstep.Option
	if d.Timeout != 0 {
		opts = append(opts, lockstep.WithTimeout(d.Timeout))
	}
	return opts
}

// document is the YAML wire shape.
type document struct {
	Timeout string   `yaml:"timeout,omitempty"`
	Steps   []string `yaml:"steps"`
}

// ParseStep parses a compact "name:ordinal" step.
func ParseStep(s string) (lockstep.Occurrence, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return lockstep.Occurrence{}, fmt.Errorf("malformed step %q: want name:ordinal", s)
	}
	ord, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return lockstep.Occurrence{}, fmt.Errorf("malformed step %q: %w", s, err)
	}
	if ord == 0 {
		return lockstep.Occurrence{}, fmt.Errorf("malformed step %q: ordinals start from 1", s)
	}
	return lockstep.Occurrence{Name: s[:i], Ordinal: ord}, nil
}

// FormatStep renders an occurrence in the compact step syntax.
func FormatStep(occ lockstep.Occurrence) string {
	return occ.String()
}

// Read decodes and validates a schedule document.
func Read(r io.Reader) (*Document, error) {
	var raw document
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	doc := &Document{}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, fmt.Errorf("bad timeout: %w", err)
		}
		doc.Timeout = d
	}
	for _, s := range raw.Steps {
		occ, err := ParseStep(s)
		if err != nil {
			return nil, err
		}
		doc.Steps = append(doc.Steps, occ)
	}
	if err := doc.Steps.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write encodes a document in canonical form: timeout first, steps in compact
// syntax.
func Write(w io.Writer, doc *Document) error {
	raw := document{Steps: make([]string, 0, len(doc.Steps))}
	if doc.Timeout != 0 {
		raw.Timeout = doc.Timeout.String()
	}
	for _, occ := range doc.Steps {
		raw.Steps = append(raw.Steps, FormatStep(occ))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	return enc.Close()
}

// Load reads a schedule document from a file.
func Load(filename string) (*Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule file: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

// Save writes a schedule document to a file.
func Save(filename string, doc *Document) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create schedule file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := Write(w, doc); err != nil {
		return err
	}
	return w.Flush()
}
