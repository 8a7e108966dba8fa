package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Registry is an immutable, compiled SchemaSet. Every schema in the set can be
// used as a validation root. A Registry is safe for concurrent use.
type Registry struct {
	ids       []string
	aliases   map[string]string
	ambiguous map[string][]string
	compiled  map[string]*gojsonschema.Schema
}

type parsedSource struct {
	name string
	id   string
	data []byte
	doc  map[string]interface{}
}

// NewRegistry parses, cross-checks and compiles the given schema documents.
// Each document must carry a unique "$id", and every "$ref" must resolve to a
// document in the set.
func NewRegistry(sources ...SchemaSource) (*Registry, error) {
	if len(sources) == 0 {
		return nil, &ConfigurationError{Err: errors.New("empty schema set")}
	}

	parsed := make([]parsedSource, 0, len(sources))
	known := make(map[string]string, len(sources))
	for _, src := range sources {
		ps, err := parseSource(src)
		if err != nil {
			return nil, err
		}
		if prev, dup := known[ps.id]; dup {
			return nil, &ConfigurationError{
				Schema: src.Name,
				Err:    fmt.Errorf("duplicate $id %q (also declared by %s)", ps.id, prev),
			}
		}
		known[ps.id] = src.Name
		parsed = append(parsed, ps)
	}

	for _, ps := range parsed {
		if err := checkRefs(ps, known); err != nil {
			return nil, err
		}
	}

	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = gojsonschema.Draft7
	for _, ps := range parsed {
		if err := loader.AddSchemas(gojsonschema.NewBytesLoader(ps.data)); err != nil {
			return nil, &ConfigurationError{Schema: ps.name, Err: fmt.Errorf("failed to register schema: %w", err)}
		}
	}

	r := &Registry{
		ids:       make([]string, 0, len(parsed)),
		aliases:   make(map[string]string, len(parsed)),
		ambiguous: make(map[string][]string),
		compiled:  make(map[string]*gojsonschema.Schema, len(parsed)),
	}
	for _, ps := range parsed {
		schema, err := loader.Compile(gojsonschema.NewReferenceLoader(ps.id))
		if err != nil {
			return nil, &ConfigurationError{Schema: ps.name, Err: fmt.Errorf("failed to compile schema: %w", err)}
		}
		r.ids = append(r.ids, ps.id)
		r.compiled[ps.id] = schema
		r.addAlias(shortName(ps.id), ps.id)
	}

	return r, nil
}

func parseSource(src SchemaSource) (parsedSource, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(src.Data, &doc); err != nil {
		return parsedSource{}, &ConfigurationError{Schema: src.Name, Err: fmt.Errorf("failed to parse schema: %w", err)}
	}

	id, _ := doc["$id"].(string)
	if id == "" {
		return parsedSource{}, &ConfigurationError{Schema: src.Name, Err: errors.New("schema has no $id")}
	}
	id = normalizeID(id)

	u, err := url.Parse(id)
	if err != nil || !u.IsAbs() {
		return parsedSource{}, &ConfigurationError{Schema: src.Name, Err: fmt.Errorf("$id %q is not an absolute URI", id)}
	}

	return parsedSource{name: src.Name, id: id, data: src.Data, doc: doc}, nil
}

// checkRefs walks the schema document and verifies each $ref targets a
// document in known.
func checkRefs(ps parsedSource, known map[string]string) error {
	base, _ := url.Parse(ps.id)
	var refErr error
	walkRefs(ps.doc, func(ref string) {
		if refErr != nil {
			return
		}
		u, err := url.Parse(ref)
		if err != nil {
			refErr = &ConfigurationError{Schema: ps.name, Err: fmt.Errorf("invalid $ref %q: %w", ref, err)}
			return
		}
		target := normalizeID(base.ResolveReference(u).String())
		if _, ok := known[target]; !ok {
			refErr = &ConfigurationError{
				Schema: ps.name,
				Err:    fmt.Errorf("$ref %q: %w in set", ref, ErrSchemaNotFound),
			}
		}
	})
	return refErr
}

// literalKeywords hold instance data, not subschemas.
var literalKeywords = map[string]bool{
	"enum":     true,
	"const":    true,
	"examples": true,
	"default":  true,
}

// schemaMapKeywords map arbitrary names to subschemas; their keys are never
// keywords, so a property called "default" is walked like any other.
var schemaMapKeywords = map[string]bool{
	"properties":        true,
	"patternProperties": true,
	"definitions":       true,
	"$defs":             true,
	"dependencies":      true,
}

func walkRefs(node interface{}, visit func(ref string)) {
	switch n := node.(type) {
	case map[string]interface{}:
		if ref, ok := n["$ref"].(string); ok {
			visit(ref)
		}
		for _, k := range sortedKeys(n) {
			switch {
			case literalKeywords[k]:
				continue
			case schemaMapKeywords[k]:
				if named, ok := n[k].(map[string]interface{}); ok {
					for _, name := range sortedKeys(named) {
						walkRefs(named[name], visit)
					}
					continue
				}
			}
			walkRefs(n[k], visit)
		}
	case []interface{}:
		for _, item := range n {
			walkRefs(item, visit)
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeID strips the fragment so "x.json#" and "x.json" name the same document.
func normalizeID(id string) string {
	if i := strings.IndexByte(id, '#'); i >= 0 {
		return id[:i]
	}
	return id
}

// shortName returns the file stem of an $id, e.g. "SensorInfo" for
// "http://sensor-svc/schemas/SensorInfo.json".
func shortName(id string) string {
	u, err := url.Parse(id)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// addAlias registers short for id. A stem shared by several $ids is dropped
// from aliases and kept in ambiguous so Resolve can report the candidates.
func (r *Registry) addAlias(short, id string) {
	if short == "" {
		return
	}
	if ids, ok := r.ambiguous[short]; ok {
		r.ambiguous[short] = append(ids, id)
		return
	}
	if prev, taken := r.aliases[short]; taken {
		delete(r.aliases, short)
		r.ambiguous[short] = []string{prev, id}
		return
	}
	r.aliases[short] = id
}

// IDs returns the registered $ids in load order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Resolve maps a full $id or a short name to the registered $id.
func (r *Registry) Resolve(id string) (string, error) {
	if _, ok := r.compiled[normalizeID(id)]; ok {
		return normalizeID(id), nil
	}
	if full, ok := r.aliases[id]; ok {
		return full, nil
	}
	if ids, ok := r.ambiguous[id]; ok {
		return "", &ConfigurationError{
			Schema: id,
			Err:    fmt.Errorf("ambiguous short name, use the full $id (one of %s)", strings.Join(ids, ", ")),
		}
	}
	return "", &ConfigurationError{Schema: id, Err: ErrSchemaNotFound}
}

// Lookup returns the compiled schema registered under id.
func (r *Registry) Lookup(id string) (*gojsonschema.Schema, error) {
	full, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	return r.compiled[full], nil
}
