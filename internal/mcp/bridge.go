// Package mcpbridge exposes the REST API as MCP tools. Each tool call is
// replayed against the in-process router with the caller's API key, so auth,
// validation and admin checks stay in one place.
package mcpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"quorum/internal/config"
	"quorum/internal/service"
)

type Options struct {
	App           *service.App
	Config        config.Config
	Router        http.Handler
	DefaultAPIKey string
	Version       string
}

type Bridge struct {
	app           *service.App
	cfg           config.Config
	router        http.Handler
	defaultAPIKey string
	server        *mcpserver.MCPServer
}

type argKind int

const (
	argString argKind = iota
	argNumber
	argStringList
)

type ToolArg struct {
	Name        string
	Description string
	Kind        argKind
	Required    bool
}

type ToolSpec struct {
	Name        string
	Description string
	Method      string
	Path        string
	Args        []ToolArg
}

type apiEnvelope struct {
	OK         bool `json:"ok"`
	Data       any  `json:"data"`
	Error      any  `json:"error"`
	Pagination any  `json:"pagination"`
}

var routeParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

func New(opts Options) *Bridge {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	b := &Bridge{
		app:           opts.App,
		cfg:           opts.Config,
		router:        opts.Router,
		defaultAPIKey: strings.TrimSpace(opts.DefaultAPIKey),
	}
	b.server = mcpserver.NewMCPServer(
		"quorum",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions("Use quorum tools to manage saved searches, search forum posts and read system messages."),
	)
	for _, spec := range toolSpecs() {
		b.server.AddTool(spec.toTool(), b.makeToolHandler(spec))
	}
	return b
}

func (b *Bridge) MCPServer() *mcpserver.MCPServer {
	return b.server
}

func (b *Bridge) ServeStdio() error {
	return mcpserver.ServeStdio(b.server)
}

func (b *Bridge) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(
		b.server,
		mcpserver.WithEndpointPath(b.cfg.MCP.HTTP.Path),
	)
}

func toolSpecs() []ToolSpec {
	return []ToolSpec{
		{Name: "users_me", Description: "Get the authenticated user", Method: http.MethodGet, Path: "/api/v1/users/me"},
		{Name: "saved_searches_get", Description: "List the current user's saved search terms", Method: http.MethodGet, Path: "/api/v1/users/me/saved-searches"},
		{
			Name:        "saved_searches_set",
			Description: "Replace the current user's saved search terms",
			Method:      http.MethodPut,
			Path:        "/api/v1/users/me/saved-searches",
			Args: []ToolArg{
				{Name: "saved_searches", Description: "Ordered search terms; an empty list clears them", Kind: argStringList, Required: true},
			},
		},
		{
			Name:        "search_posts",
			Description: "Full-text search over public posts, newest first",
			Method:      http.MethodGet,
			Path:        "/api/v1/search",
			Args: []ToolArg{
				{Name: "q", Description: "Search terms", Required: true},
				{Name: "limit", Description: "Maximum results (default 20)", Kind: argNumber},
			},
		},
		{
			Name:        "messages_inbox",
			Description: "List the current user's private messages",
			Method:      http.MethodGet,
			Path:        "/api/v1/messages",
			Args: []ToolArg{
				{Name: "page", Kind: argNumber, Description: "Page number"},
				{Name: "per_page", Kind: argNumber, Description: "Page size"},
			},
		},
		{
			Name:        "topics_create",
			Description: "Create a topic with its first post",
			Method:      http.MethodPost,
			Path:        "/api/v1/topics",
			Args: []ToolArg{
				{Name: "title", Description: "Topic title", Required: true},
				{Name: "raw", Description: "First post body", Required: true},
			},
		},
		{
			Name:        "topics_reply",
			Description: "Reply to a topic",
			Method:      http.MethodPost,
			Path:        "/api/v1/topics/{id}/posts",
			Args: []ToolArg{
				{Name: "raw", Description: "Post body", Required: true},
			},
		},
		{Name: "saved_search_notify", Description: "Run the saved search notifier for a user now (admin)", Method: http.MethodPost, Path: "/api/v1/admin/saved-searches/run/{id}"},
		{Name: "admin_stats", Description: "Row counts and system message totals (admin)", Method: http.MethodGet, Path: "/api/v1/admin/stats"},
	}
}

func (s ToolSpec) toTool() mcptypes.Tool {
	opts := []mcptypes.ToolOption{
		mcptypes.WithDescription(s.Description),
	}
	for _, param := range pathParams(s.Path) {
		opts = append(opts, mcptypes.WithString(param, mcptypes.Required(), mcptypes.Description("Path parameter: "+param)))
	}
	for _, a := range s.Args {
		props := []mcptypes.PropertyOption{mcptypes.Description(a.Description)}
		if a.Required {
			props = append(props, mcptypes.Required())
		}
		switch a.Kind {
		case argNumber:
			opts = append(opts, mcptypes.WithNumber(a.Name, props...))
		case argStringList:
			props = append(props, mcptypes.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcptypes.WithArray(a.Name, props...))
		default:
			opts = append(opts, mcptypes.WithString(a.Name, props...))
		}
	}
	return mcptypes.NewTool(s.Name, opts...)
}

func (b *Bridge) makeToolHandler(spec ToolSpec) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		token := extractBearer(request.Header.Get("Authorization"))
		if token == "" {
			token = b.defaultAPIKey
		}
		if token == "" {
			return mcptypes.NewToolResultError("missing API key: provide Authorization header or --api-key for stdio mode"), nil
		}
		if _, err := b.app.Authenticate(ctx, token); err != nil {
			return mcptypes.NewToolResultError("authentication failed"), nil
		}

		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		path, err := fillPath(spec.Path, args)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}

		query := map[string]any{}
		var payload map[string]any
		if methodHasBody(spec.Method) {
			payload = map[string]any{}
		}
		for _, a := range spec.Args {
			v, ok := args[a.Name]
			if !ok || v == nil {
				if a.Required {
					return mcptypes.NewToolResultError("missing required argument: " + a.Name), nil
				}
				continue
			}
			if payload != nil {
				payload[a.Name] = v
			} else {
				query[a.Name] = v
			}
		}

		env, status, err := b.invokeREST(ctx, token, spec.Method, path, query, payload)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		if !env.OK {
			return mcptypes.NewToolResultError(apiErrorText(env.Error, status)), nil
		}

		out := map[string]any{
			"status_code": status,
			"data":        env.Data,
		}
		if env.Pagination != nil {
			out["pagination"] = env.Pagination
		}
		return mcptypes.NewToolResultJSON(out)
	}
}

func (b *Bridge) invokeREST(ctx context.Context, apiKey, method, path string, query map[string]any, payload map[string]any) (apiEnvelope, int, error) {
	target := path
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Add(k, queryValue(v))
		}
		target += "?" + q.Encode()
	}

	body := bytes.NewReader(nil)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiEnvelope{}, 0, err
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	rr := httptest.NewRecorder()
	b.router.ServeHTTP(rr, req)

	var env apiEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		return apiEnvelope{}, rr.Code, fmt.Errorf("invalid API response: %w", err)
	}
	return env, rr.Code, nil
}

func fillPath(path string, args map[string]any) (string, error) {
	out := path
	for _, key := range pathParams(path) {
		var value string
		if v, ok := args[key]; ok && v != nil {
			value = strings.TrimSpace(fmt.Sprint(v))
		}
		if value == "" {
			return "", fmt.Errorf("missing required path argument: %s", key)
		}
		out = strings.ReplaceAll(out, "{"+key+"}", url.PathEscape(value))
	}
	return out, nil
}

func pathParams(path string) []string {
	matches := routeParamPattern.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) == 2 {
			out = append(out, m[1])
		}
	}
	return out
}

// queryValue renders whole JSON numbers without a decimal point.
func queryValue(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func apiErrorText(apiErr any, status int) string {
	if m, ok := apiErr.(map[string]any); ok {
		code, _ := m["code"].(string)
		msg, _ := m["message"].(string)
		if code != "" && msg != "" {
			return code + ": " + msg
		}
		if msg != "" {
			return msg
		}
	}
	if apiErr != nil {
		return fmt.Sprint(apiErr)
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func extractBearer(h string) string {
	h = strings.TrimSpace(h)
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return h
}
