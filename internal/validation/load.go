package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/bc-dunia/sensorschema/schemas"
)

// SchemaSource is one raw schema document and the name it was loaded from.
type SchemaSource struct {
	Name string
	Data []byte
}

// Document is a syntactically checked JSON input document.
type Document struct {
	Path string
	Raw  []byte
}

// LoadDocument reads and decodes the JSON document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Op: OpRead, Err: err}
	}

	if err := checkJSON(data); err != nil {
		return nil, &LoadError{Path: path, Op: OpParse, Err: err}
	}

	return &Document{Path: path, Raw: data}, nil
}

// checkJSON verifies data holds exactly one JSON value. Numbers are decoded
// as json.Number, the same way the validator reads them.
func checkJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

// LoadSchemaSources reads every file in fsys matching pattern, in lexical order.
func LoadSchemaSources(fsys fs.FS, pattern string) ([]SchemaSource, error) {
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("bad schema pattern %q: %w", pattern, err)}
	}
	if len(matches) == 0 {
		return nil, &ConfigurationError{Err: fmt.Errorf("no schema files match %q", pattern)}
	}
	sort.Strings(matches)

	sources := make([]SchemaSource, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, &ConfigurationError{Schema: name, Err: fmt.Errorf("failed to read schema: %w", err)}
		}
		sources = append(sources, SchemaSource{Name: name, Data: data})
	}
	return sources, nil
}

// EmbeddedSources returns the schema set compiled into the binary.
func EmbeddedSources() ([]SchemaSource, error) {
	return LoadSchemaSources(schemas.FS, schemas.Pattern)
}
