package checkpoint

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed metadata.schema.json
var metadataSchema string

var compiledMetadataSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(metadataSchema))
})

// SchemaError lists the fields of a metadata document that violate the contract.
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("metadata does not match schema: %s", strings.Join(e.Fields, "; "))
}

func validateMetadata(doc []byte) error {
	schema, err := compiledMetadataSchema()
	if err != nil {
		return fmt.Errorf("load metadata schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate metadata: %w", err)
	}

	if result.Valid() {
		return nil
	}

	schemaErr := &SchemaError{Fields: make([]string, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		schemaErr.Fields = append(schemaErr.Fields, fmt.Sprintf("%s: %s", field, desc.Description()))
	}

	return schemaErr
}
