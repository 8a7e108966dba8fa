package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// keywords maps gojsonschema error types to the JSON Schema keyword that produced them.
var keywords = map[string]string{
	"required":                        "required",
	"invalid_type":                    "type",
	"number_any_of":                   "anyOf",
	"number_one_of":                   "oneOf",
	"number_all_of":                   "allOf",
	"number_not":                      "not",
	"missing_dependency":              "dependencies",
	"const":                           "const",
	"enum":                            "enum",
	"array_no_additional_items":       "additionalItems",
	"array_min_items":                 "minItems",
	"array_max_items":                 "maxItems",
	"unique":                          "uniqueItems",
	"contains":                        "contains",
	"array_min_properties":            "minProperties",
	"array_max_properties":            "maxProperties",
	"additional_property_not_allowed": "additionalProperties",
	"invalid_property_pattern":        "patternProperties",
	"invalid_property_name":           "propertyNames",
	"string_gte":                      "minLength",
	"string_lte":                      "maxLength",
	"does_not_match_pattern":          "pattern",
	"multiple_of":                     "multipleOf",
	"number_gte":                      "minimum",
	"number_gt":                       "exclusiveMinimum",
	"number_lte":                      "maximum",
	"number_lt":                       "exclusiveMaximum",
	"condition_then":                  "then",
	"condition_else":                  "else",
	"format":                          "format",
}

// Error types whose context is the parent object; the offending property is in details.
var propertyScoped = map[string]bool{
	"required":                        true,
	"additional_property_not_allowed": true,
}

const (
	rootContext = "(root)"
	// contextSep separates context tokens; NUL cannot appear unescaped in a JSON key.
	contextSep  = "\x00"
)

// Validate checks doc against the schema registered under rootID.
func (r *Registry) Validate(ctx context.Context, rootID string, doc *Document) (*ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schema, err := r.Lookup(rootID)
	if err != nil {
		return nil, err
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc.Raw))
	if err != nil {
		return nil, &LoadError{Path: doc.Path, Op: OpParse, Err: fmt.Errorf("validator rejected document: %w", err)}
	}

	return convertResult(res), nil
}

func convertResult(res *gojsonschema.Result) *ValidationResult {
	result := NewValidationResult()
	if res.Valid() {
		return result
	}

	records := make([]ErrorRecord, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		records = append(records, newErrorRecord(e))
	}

	// gojsonschema walks object properties in map order; sort for stable output.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].InstancePath != records[j].InstancePath {
			return records[i].InstancePath < records[j].InstancePath
		}
		if records[i].Keyword != records[j].Keyword {
			return records[i].Keyword < records[j].Keyword
		}
		return records[i].Message < records[j].Message
	})

	for _, rec := range records {
		result.AddError(rec)
	}
	return result
}

func newErrorRecord(e gojsonschema.ResultError) ErrorRecord {
	errType := e.Type()
	keyword, ok := keywords[errType]
	if !ok {
		keyword = errType
	}

	tokens := contextTokens(e.Context())
	details := make(map[string]interface{}, len(e.Details()))
	for k, v := range e.Details() {
		if k == "field" || k == "context" {
			continue
		}
		details[k] = v
	}
	if propertyScoped[errType] {
		if prop, ok := details["property"].(string); ok {
			tokens = append(tokens, prop)
		}
	}
	if len(details) == 0 {
		details = nil
	}

	return ErrorRecord{
		InstancePath: jsonPointer(tokens),
		Keyword:      keyword,
		Type:         errType,
		Message:      e.Description(),
		Details:      details,
	}
}

// contextTokens converts a gojsonschema context such as "(root).Sensors.0"
// into its reference tokens, without the root marker.
func contextTokens(c *gojsonschema.JsonContext) []string {
	if c == nil {
		return nil
	}
	parts := strings.Split(c.String(contextSep), contextSep)
	if len(parts) > 0 && parts[0] == rootContext {
		parts = parts[1:]
	}
	return parts
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// jsonPointer builds an RFC 6901 pointer from reference tokens.
func jsonPointer(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteByte('/')
		sb.WriteString(pointerEscaper.Replace(t))
	}
	return sb.String()
}
