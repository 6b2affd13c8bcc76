package governance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidArgs marks argument validation failures so callers can
// distinguish them from tool execution errors.
var ErrInvalidArgs = errors.New("argument validation failed")

// validateArgs checks call arguments against a tool's JSON Schema.
func validateArgs(schema []byte, args map[string]any) error {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return fmt.Errorf("tool schema: %w", err)
	}
	value := any(args)
	if args == nil {
		value = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(doc), gojsonschema.NewGoLoader(value))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	if len(result.Errors()) == 0 {
		return ErrInvalidArgs
	}
	return fmt.Errorf("%w: %s", ErrInvalidArgs, result.Errors()[0].String())
}
