package gateway

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"
)

// Response contracts for the dashboard endpoints.
const (
	schemaSummary     = "summary"
	schemaNextActions = "next_actions"
	schemaActivity    = "activity"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiled := make(map[string]*jsonschema.Schema)
		for _, name := range []string{schemaSummary, schemaNextActions, schemaActivity} {
			b, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			rs := &jsonschema.Schema{}
			if err := json.Unmarshal(b, rs); err != nil {
				schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = rs
		}
		schemas = compiled
	})
	return schemaErr
}

// validate checks body against the named contract.
func validate(ctx context.Context, name string, body []byte) error {
	rs, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}
	verrs, err := rs.ValidateBytes(ctx, body)
	if err != nil {
		return fmt.Errorf("validate %s response: %w", name, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, e.PropertyPath+": "+e.Message)
		}
		return fmt.Errorf("%s response does not match contract: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}
