// Package catalog loads the movie catalog served by a c2w server and
// provides the streaming collaborator signalled when a user joins a movie
// room.
//
// A catalog document lists movies in order; ids are assigned from 1:
//
//	{"movies": [{"title": "Up", "host": "127.0.0.1", "port": 2001}]}
//
// The same shape may be written in YAML.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
)

// MaxMovies is the number of ids a movie room can be addressed by.
const MaxMovies = 255

// Catalog errors.
var (
	ErrTooManyMovies = errors.New("catalog: more than 255 movies")
	ErrInvalidEntry  = errors.New("catalog: invalid movie entry")
)

// Format is a catalog encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file name's extension. Anything that
// is not .yaml or .yml is JSON.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Document is the on-disk catalog.
type Document struct {
	Movies []Entry `json:"movies" yaml:"movies"`
}

// Entry is one movie as written in a catalog file.
type Entry struct {
	Title string `json:"title" yaml:"title"`
	Host  string `json:"host" yaml:"host"`
	Port  uint16 `json:"port" yaml:"port"`
}

// Parse decodes a catalog document and assigns movie ids.
func Parse(data []byte, format Format) ([]model.Movie, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog: parse yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("catalog: parse json: %w", err)
		}
	}
	return doc.Resolve()
}

// Resolve validates the document's entries and assigns ids in order.
func (d Document) Resolve() ([]model.Movie, error) {
	if len(d.Movies) > MaxMovies {
		return nil, fmt.Errorf("%w: %d", ErrTooManyMovies, len(d.Movies))
	}
	seen := make(map[string]bool, len(d.Movies))
	out := make([]model.Movie, 0, len(d.Movies))
	for i, e := range d.Movies {
		if e.Title == "" {
			return nil, fmt.Errorf("%w: movie %d has no title", ErrInvalidEntry, i+1)
		}
		if seen[e.Title] {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrInvalidEntry, e.Title)
		}
		seen[e.Title] = true
		addr, err := netip.ParseAddr(e.Host)
		if err != nil || !addr.Unmap().Is4() {
			return nil, fmt.Errorf("%w: %q host %q is not an IPv4 address", ErrInvalidEntry, e.Title, e.Host)
		}
		out = append(out, model.Movie{
			ID:    uint8(i + 1),
			Title: e.Title,
			Addr:  netip.AddrPortFrom(addr.Unmap(), e.Port),
		})
	}
	return out, nil
}

// Load reads a whole document from r.
func Load(r io.Reader, format Format) ([]model.Movie, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return Parse(data, format)
}

// LoadFile reads the catalog at path, choosing the format by extension.
func LoadFile(path string) ([]model.Movie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Parse(data, FormatFor(path))
}

// Populate adds movies to dir.
func Populate(dir *directory.Directory, movies []model.Movie) error {
	for _, m := range movies {
		if err := dir.AddMovie(m); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	return nil
}
