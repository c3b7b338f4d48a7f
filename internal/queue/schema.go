package queue

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func compileSchema(raw string) (*gojsonschema.Schema, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid payload schema: %w", err)
	}
	return schema, nil
}

func validatePayload(schema *gojsonschema.Schema, value []byte) error {
	if schema == nil {
		return nil
	}
	doc := strings.TrimSpace(string(value))
	if doc == "" {
		doc = "null"
	}
	res, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		// Not JSON at all.
		return &PayloadValidationError{
			Errors:  []ValidationErrorItem{{Path: "(root)", Message: err.Error()}},
			Message: "payload_schema_validation_failed",
		}
	}
	if res.Valid() {
		return nil
	}
	items := make([]ValidationErrorItem, 0, len(res.Errors()))
	for _, item := range res.Errors() {
		items = append(items, ValidationErrorItem{
			Path:    item.Field(),
			Message: item.Description(),
			Value:   item.Value(),
		})
	}
	return &PayloadValidationError{
		Errors:  items,
		Message: "payload_schema_validation_failed",
	}
}
