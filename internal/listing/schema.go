package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pageSchema describes the subset of the announcement query response we rely on.
var pageSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"totalpages":    map[string]any{"type": []any{"number", "null"}, "minimum": 0},
		"announcements": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type":     "object",
				"required": []any{"adjunctUrl"},
				"properties": map[string]any{
					"secCode":           map[string]any{"type": []any{"string", "null"}},
					"secName":           map[string]any{"type": []any{"string", "null"}},
					"announcementTitle": map[string]any{"type": []any{"string", "null"}},
					"announcementTime":  map[string]any{"type": []any{"number", "string", "null"}},
					"adjunctUrl":        map[string]any{"type": "string", "minLength": 1},
				},
			},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(pageSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("listing_page.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile("listing_page.json")
	})
	return compiled, compileErr
}

// validatePage checks a raw response page before it is decoded.
func validatePage(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("page does not match schema: %w", err)
	}
	return nil
}
