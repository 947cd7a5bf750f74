package render

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/adinject/kit"
)

// RegisterMCP registers the render tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	targetingSchema := map[string]any{
		"type":        "object",
		"description": "Page targeting: url, sections, keywords, gamPageId, gamExternalId, siteDomain",
		"properties": map[string]any{
			"url":           map[string]any{"type": "string"},
			"sections":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"keywords":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"gamPageId":     map[string]any{"type": "string"},
			"gamExternalId": map[string]any{"type": "string"},
			"siteDomain":    map[string]any{"type": "string"},
		},
	}
	pageSchema := inputSchema(map[string]any{
		"html":      map[string]any{"type": "string", "description": "Full HTML document"},
		"targeting": targetingSchema,
	}, []string{"html"})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "adinject_blocked_keys",
		Description: "Evaluate the ad blocking rules for a page. Returns the blocked placement keys; all=true means every placement is blocked.",
		InputSchema: inputSchema(map[string]any{"targeting": targetingSchema}, []string{"targeting"}),
	}, s.BlockedEndpoint(), decodeJSON[BlockedRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "adinject_prefill",
		Description: "Insert prefill placeholders and their CSS into a rendered page.",
		InputSchema: pageSchema,
	}, s.PrefillEndpoint(), decodeJSON[PageRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "adinject_amp",
		Description: "Insert AMP ad fragments, the default video player and affiliate product cards into an AMP page.",
		InputSchema: pageSchema,
	}, s.AMPEndpoint(), decodeJSON[PageRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "adinject_ads",
		Description: "Insert the fragments of one family (prefill, amp or fbia) into a page without style aggregation.",
		InputSchema: inputSchema(map[string]any{
			"html":      map[string]any{"type": "string", "description": "Full HTML document"},
			"targeting": targetingSchema,
			"family":    map[string]any{"type": "string", "enum": []any{"prefill", "amp", "fbia"}},
		}, []string{"html"}),
	}, s.AdsEndpoint(), decodeJSON[PageRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "adinject_client_settings",
		Description: "Return the prebid build URLs, ad refresh rates and video player setting of the live configuration.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.ClientSettingsEndpoint(), decodeJSON[struct{}])
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
