package mcpbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"quorum/internal/api"
	"quorum/internal/api/handlers"
	ws "quorum/internal/api/websocket"
	"quorum/internal/broker"
	"quorum/internal/config"
	"quorum/internal/model"
	"quorum/internal/service"
	"quorum/internal/storage"
	"quorum/internal/storage/repos"
)

func TestMCPInProcessSavedSearchRoundTrip(t *testing.T) {
	env := setupMCPTestEnv(t)

	bridge := New(Options{
		App:           env.app,
		Config:        env.cfg,
		Router:        env.router,
		DefaultAPIKey: env.memberKey,
	})

	client, err := mcpclient.NewInProcessClient(bridge.MCPServer())
	if err != nil {
		t.Fatalf("new in-process client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("start client: %v", err)
	}
	if _, err := client.Initialize(ctx, initializeRequest()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tools, err := client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	for _, name := range []string{"saved_searches_set", "saved_searches_get", "search_posts", "saved_search_notify"} {
		if !hasTool(tools.Tools, name) {
			t.Fatalf("expected tool %s to be exposed", name)
		}
	}

	set := callTool(t, client, "saved_searches_set", map[string]any{
		"saved_searches": []any{" coupon ", "discount"},
	})
	if set.IsError {
		t.Fatalf("saved_searches_set returned error: %#v", set)
	}

	got := callTool(t, client, "saved_searches_get", nil)
	if got.IsError {
		t.Fatalf("saved_searches_get returned error: %#v", got)
	}
	var payload struct {
		Data struct {
			SavedSearches []string `json:"saved_searches"`
		} `json:"data"`
	}
	decodeToolJSON(t, got, &payload)
	if len(payload.Data.SavedSearches) != 2 || payload.Data.SavedSearches[0] != "coupon" {
		t.Fatalf("unexpected saved searches %v", payload.Data.SavedSearches)
	}

	missing := callTool(t, client, "search_posts", nil)
	if !missing.IsError {
		t.Fatal("expected search_posts without q to fail")
	}

	created := callTool(t, client, "topics_create", map[string]any{"title": "Deals", "raw": "coupon codes inside"})
	if created.IsError {
		t.Fatalf("topics_create returned error: %#v", created)
	}
	found := callTool(t, client, "search_posts", map[string]any{"q": "coupon", "limit": 5})
	if found.IsError {
		t.Fatalf("search_posts returned error: %#v", found)
	}
	var results struct {
		Data struct {
			Results []model.SearchResult `json:"results"`
		} `json:"data"`
	}
	decodeToolJSON(t, found, &results)
	if len(results.Data.Results) != 1 || results.Data.Results[0].AuthorUsername != "member" {
		t.Fatalf("unexpected search results %+v", results.Data.Results)
	}
}

func TestMCPHTTPAdminToolsRequireAdmin(t *testing.T) {
	env := setupMCPTestEnv(t)

	bridge := New(Options{
		App:    env.app,
		Config: env.cfg,
		Router: env.router,
	})

	ts := httptest.NewServer(bridge.HTTPHandler())
	defer ts.Close()

	adminClient := startHTTPClient(t, ts.URL+env.cfg.MCP.HTTP.Path, env.adminKey)
	okResult := callTool(t, adminClient, "admin_stats", nil)
	if okResult.IsError {
		t.Fatalf("expected admin_stats success, got error result")
	}
	notify := callTool(t, adminClient, "saved_search_notify", map[string]any{"id": env.member.ID})
	if notify.IsError {
		t.Fatalf("expected saved_search_notify success, got %#v", notify)
	}

	memberClient := startHTTPClient(t, ts.URL+env.cfg.MCP.HTTP.Path, env.memberKey)
	denied := callTool(t, memberClient, "admin_stats", nil)
	if !denied.IsError {
		t.Fatalf("expected admin_stats to be denied for a regular user")
	}

	anonClient := startHTTPClient(t, ts.URL+env.cfg.MCP.HTTP.Path, "")
	anon := callTool(t, anonClient, "users_me", nil)
	if !anon.IsError {
		t.Fatalf("expected users_me without a key to fail")
	}
}

func TestFillPath(t *testing.T) {
	got, err := fillPath("/api/v1/topics/{id}/posts", map[string]any{"id": "a b"})
	if err != nil {
		t.Fatalf("fill path: %v", err)
	}
	if got != "/api/v1/topics/a%20b/posts" {
		t.Fatalf("unexpected path %q", got)
	}
	if _, err := fillPath("/api/v1/topics/{id}", map[string]any{}); err == nil {
		t.Fatal("expected missing path argument error")
	}
	if queryValue(float64(5)) != "5" || queryValue("x") != "x" {
		t.Fatal("unexpected query value rendering")
	}
}

type mcpTestEnv struct {
	cfg       config.Config
	app       *service.App
	router    http.Handler
	member    model.User
	adminKey  string
	memberKey string
}

func setupMCPTestEnv(t *testing.T) mcpTestEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "mcp-test.db")
	cfg.MCP.Enabled = true
	cfg.MCP.HTTP.Enabled = true
	cfg.MCP.HTTP.Path = "/mcp"

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := service.New(cfg, repos.New(db), broker.NewMemory(64), nil, nil)
	_, adminKey, err := app.BootstrapInit(ctx, "admin")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	member, memberKey, err := app.CreateUser(ctx, "member", 1, false)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	router := api.NewRouter(handlers.New(app, db, cfg), app, ws.NewHub(app, app.Log), app.Log)
	return mcpTestEnv{
		cfg:       cfg,
		app:       app,
		router:    router,
		member:    member,
		adminKey:  adminKey,
		memberKey: memberKey,
	}
}

func startHTTPClient(t *testing.T, endpoint, key string) *mcpclient.Client {
	t.Helper()
	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	c, err := mcpclient.NewStreamableHttpClient(endpoint, transport.WithHTTPHeaders(headers))
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start http client: %v", err)
	}
	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		t.Fatalf("init http client: %v", err)
	}
	return c
}

func callTool(t *testing.T, c *mcpclient.Client, name string, args map[string]any) *mcptypes.CallToolResult {
	t.Helper()
	req := mcptypes.CallToolRequest{Params: mcptypes.CallToolParams{Name: name}}
	if args != nil {
		req.Params.Arguments = args
	}
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func decodeToolJSON(t *testing.T, res *mcptypes.CallToolResult, out any) {
	t.Helper()
	for _, c := range res.Content {
		if tc, ok := c.(mcptypes.TextContent); ok {
			if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
				t.Fatalf("decode tool output: %v\n%s", err, tc.Text)
			}
			return
		}
	}
	t.Fatalf("tool result has no text content: %#v", res)
}

func initializeRequest() mcptypes.InitializeRequest {
	return mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcptypes.Implementation{
				Name:    "quorum-test-client",
				Version: "0.0.1",
			},
			Capabilities: mcptypes.ClientCapabilities{},
		},
	}
}

func hasTool(tools []mcptypes.Tool, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}
