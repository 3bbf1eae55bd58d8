package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

// Register adds a tool with a typed parameter struct. The input schema is
// generated from P by reflection when the definition does not provide one.
func Register[P any](c *Catalog, def Definition, handler func(ctx context.Context, tctx *ToolContext, params P) (any, error)) error {
	if def.InputSchema == nil {
		def.InputSchema = GenerateSchema[P]()
	}
	return c.Add(&MaterializedTool{
		Definition: def,
		Handler:    wrapHandler(handler),
	})
}

// wrapHandler adapts a typed handler to the raw Handler signature.
func wrapHandler[P any](handler func(ctx context.Context, tctx *ToolContext, params P) (any, error)) Handler {
	return func(ctx context.Context, tctx *ToolContext, args json.RawMessage) (any, error) {
		var params P
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
		}
		return handler(ctx, tctx, params)
	}
}
