package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) *Document {
	t.Helper()
	doc, err := LoadDocument(filepath.Join("testdata", name))
	require.NoError(t, err)
	return doc
}

func writeDoc(t *testing.T, content string) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	doc, err := LoadDocument(path)
	require.NoError(t, err)
	return doc
}

func TestValidate_ConformingDocument(t *testing.T) {
	r := newEmbeddedRegistry(t)

	result, err := r.Validate(context.Background(), "SensorInfo", loadFixture(t, "valid.json"))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "Validation passed", result.String())
}

func TestValidate_MissingRequiredField(t *testing.T) {
	r := newEmbeddedRegistry(t)

	result, err := r.Validate(context.Background(), "SensorInfo", loadFixture(t, "missing_name.json"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	recs := result.ErrorsAt("/Sensors/0/name")
	require.Len(t, recs, 1)
	assert.Equal(t, "required", recs[0].Keyword)
	assert.Equal(t, "required", recs[0].Type)
	assert.Equal(t, "name", recs[0].Details["property"])
	assert.Contains(t, recs[0].Message, "name")
}

func TestValidate_WrongType(t *testing.T) {
	r := newEmbeddedRegistry(t)

	result, err := r.Validate(context.Background(), "SensorInfo", loadFixture(t, "threshold_number.json"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	recs := result.ErrorsAt("/Sensors/0/object/attributes/0/value")
	require.Len(t, recs, 1)
	assert.Equal(t, "type", recs[0].Keyword)
	assert.Equal(t, "invalid_type", recs[0].Type)
	assert.Equal(t, "string", fmt.Sprint(recs[0].Details["expected"]))
	assert.Equal(t, "number", fmt.Sprint(recs[0].Details["given"]))
}

func TestValidate_EmptySensors(t *testing.T) {
	r := newEmbeddedRegistry(t)

	result, err := r.Validate(context.Background(), "SensorInfo", loadFixture(t, "empty_sensors.json"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	recs := result.ErrorsAt("/Sensors")
	require.Len(t, recs, 1)
	assert.Equal(t, "minItems", recs[0].Keyword)
}

func TestValidate_KeywordsAndPointers(t *testing.T) {
	r := newEmbeddedRegistry(t)

	// sensor wraps an object tree in a minimal SensorInfo document.
	sensor := func(object string) string {
		return `{"Sensors": [{"name": "mb", "object": ` + object + `}]}`
	}

	tests := []struct {
		name    string
		doc     string
		pointer string
		keyword string
	}{
		{
			name:    "missing root property",
			doc:     `{}`,
			pointer: "/Sensors",
			keyword: "required",
		},
		{
			name:    "additional root property",
			doc:     `{"Sensors": [{"name": "mb", "object": {"objectType": "SensorTemp", "objectName": "T1"}}], "extra": 1}`,
			pointer: "/extra",
			keyword: "additionalProperties",
		},
		{
			name:    "version pattern",
			doc:     `{"version": "v1", "Sensors": [{"name": "mb", "object": {"objectType": "SensorTemp", "objectName": "T1"}}]}`,
			pointer: "/version",
			keyword: "pattern",
		},
		{
			name:    "empty entry name",
			doc:     `{"Sensors": [{"name": "", "object": {"objectType": "SensorTemp", "objectName": "T1"}}]}`,
			pointer: "/Sensors/0/name",
			keyword: "minLength",
		},
		{
			name:    "relative parent path",
			doc:     `{"Sensors": [{"name": "mb", "parentPath": "org/openbmc", "object": {"objectType": "SensorTemp", "objectName": "T1"}}]}`,
			pointer: "/Sensors/0/parentPath",
			keyword: "pattern",
		},
		{
			name:    "unknown object type",
			doc:     sensor(`{"objectType": "SensorHumidity", "objectName": "H1"}`),
			pointer: "/Sensors/0/object/objectType",
			keyword: "enum",
		},
		{
			name:    "object name pattern",
			doc:     sensor(`{"objectType": "SensorTemp", "objectName": "MB INLET"}`),
			pointer: "/Sensors/0/object/objectName",
			keyword: "pattern",
		},
		{
			name:    "sensor device without access",
			doc:     sensor(`{"objectType": "SensorDevice", "objectName": "tmp421"}`),
			pointer: "/Sensors/0/object/access",
			keyword: "required",
		},
		{
			name:    "unknown access api",
			doc:     sensor(`{"objectType": "SensorDevice", "objectName": "tmp421", "access": {"api": "ipmi"}}`),
			pointer: "/Sensors/0/object/access/api",
			keyword: "enum",
		},
		{
			name:    "sysfs access without path",
			doc:     sensor(`{"objectType": "SensorDevice", "objectName": "tmp421", "access": {"api": "sysfs"}}`),
			pointer: "/Sensors/0/object/access/path",
			keyword: "required",
		},
		{
			name:    "unknown attribute mode",
			doc:     sensor(`{"objectType": "SensorTemp", "objectName": "T1", "attributes": [{"name": "input", "modes": "RX"}]}`),
			pointer: "/Sensors/0/object/attributes/0/modes",
			keyword: "enum",
		},
		{
			name:    "attribute missing name",
			doc:     sensor(`{"objectType": "SensorTemp", "objectName": "T1", "attributes": [{"modes": "RO"}]}`),
			pointer: "/Sensors/0/object/attributes/0/name",
			keyword: "required",
		},
		{
			name:    "nested child missing object name",
			doc:     sensor(`{"objectType": "Generic", "objectName": "mb", "childObjects": [{"objectType": "SensorFan"}]}`),
			pointer: "/Sensors/0/object/childObjects/0/objectName",
			keyword: "required",
		},
		{
			name:    "grandchild with unknown property",
			doc:     sensor(`{"objectType": "Generic", "objectName": "mb", "childObjects": [{"objectType": "Generic", "objectName": "fan", "childObjects": [{"objectType": "SensorFan", "objectName": "FAN0", "unit": "RPM"}]}]}`),
			pointer: "/Sensors/0/object/childObjects/0/childObjects/0/unit",
			keyword: "additionalProperties",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Validate(context.Background(), "SensorInfo", writeDoc(t, tt.doc))
			require.NoError(t, err)
			require.False(t, result.Valid)

			recs := result.ErrorsAt(tt.pointer)
			require.NotEmpty(t, recs, "no error at %s in %v", tt.pointer, result.Errors)
			assert.Equal(t, tt.keyword, recs[0].Keyword)
		})
	}
}

func TestValidate_AlternateRoot(t *testing.T) {
	r := newEmbeddedRegistry(t)

	result, err := r.Validate(context.Background(), "Attribute", writeDoc(t, `{"name": "UCR", "modes": "RO", "value": "40"}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = r.Validate(context.Background(), "Attribute", writeDoc(t, `{"name": "UCR", "value": 40}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, "/value", result.Errors[0].InstancePath)

	result, err = r.Validate(context.Background(), "ObjectType", writeDoc(t, `"SensorPwm"`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidate_UnknownRoot(t *testing.T) {
	r := newEmbeddedRegistry(t)

	_, err := r.Validate(context.Background(), "DeviceInfo", loadFixture(t, "valid.json"))
	require.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestValidate_CanceledContext(t *testing.T) {
	r := newEmbeddedRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Validate(ctx, "SensorInfo", loadFixture(t, "valid.json"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidate_Deterministic(t *testing.T) {
	r := newEmbeddedRegistry(t)
	doc := writeDoc(t, `{"Sensors": [{"object": {"objectType": "SensorDevice", "objectName": 7, "access": {}, "attributes": [{"modes": "X"}]}, "extra": true}], "version": 1}`)

	first, err := r.Validate(context.Background(), "SensorInfo", doc)
	require.NoError(t, err)
	require.False(t, first.Valid)

	for i := 0; i < 5; i++ {
		again, err := r.Validate(context.Background(), "SensorInfo", doc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestValidate_RegistryRebuildIsIdempotent(t *testing.T) {
	docs := []string{"valid.json", "missing_name.json", "threshold_number.json", "empty_sensors.json"}

	r1 := newEmbeddedRegistry(t)
	r2 := newEmbeddedRegistry(t)
	for _, name := range docs {
		t.Run(name, func(t *testing.T) {
			doc := loadFixture(t, name)
			a, err := r1.Validate(context.Background(), "SensorInfo", doc)
			require.NoError(t, err)
			b, err := r2.Validate(context.Background(), "SensorInfo", doc)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestValidate_ConcurrentUse(t *testing.T) {
	r := newEmbeddedRegistry(t)
	valid := loadFixture(t, "valid.json")
	invalid := loadFixture(t, "threshold_number.json")

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := valid
			if i%2 == 1 {
				doc = invalid
			}
			res, err := r.Validate(context.Background(), "SensorInfo", doc)
			if err == nil {
				results[i] = res.Valid
			}
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.Equal(t, i%2 == 0, ok, "goroutine %d", i)
	}
}

func TestJSONPointer(t *testing.T) {
	assert.Equal(t, "", jsonPointer(nil))
	assert.Equal(t, "/Sensors/0", jsonPointer([]string{"Sensors", "0"}))
	assert.Equal(t, "/a~1b/c~0d", jsonPointer([]string{"a/b", "c~d"}))
}

func TestValidationResult(t *testing.T) {
	t.Run("NewValidationResult starts valid", func(t *testing.T) {
		r := NewValidationResult()
		assert.True(t, r.Valid)
		assert.False(t, r.HasErrors())
	})

	t.Run("AddError marks invalid", func(t *testing.T) {
		r := NewValidationResult()
		r.AddError(ErrorRecord{InstancePath: "/Sensors", Keyword: "minItems", Message: "Array must have at least 1 items"})
		assert.False(t, r.Valid)
		assert.True(t, r.HasErrors())
		assert.Contains(t, r.String(), "Validation failed with 1 error(s)")
		assert.Contains(t, r.String(), "/Sensors: Array must have at least 1 items (minItems)")
	})

	t.Run("root pointer renders as slash", func(t *testing.T) {
		rec := ErrorRecord{Keyword: "type", Message: "Invalid type"}
		assert.Equal(t, "/: Invalid type (type)", rec.String())
	})
}
