package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func TestHubStreamsSavedSearchNotification(t *testing.T) {
	env := setupHubTestEnv(t)

	conn := env.connectWS(t)
	defer conn.Close()
	_ = readType(t, conn, "ack")
	initial := readType(t, conn, "initial_image")
	if total, _ := initial["total"].(float64); total != 0 {
		t.Fatalf("expected empty inbox, got %v", initial["total"])
	}

	ctx := context.Background()
	if _, err := env.app.SetSavedSearches(ctx, env.alice.ID, []string{"coupon"}); err != nil {
		t.Fatalf("save searches: %v", err)
	}
	if _, _, err := env.app.CreateTopic(ctx, env.bob.ID, "Deals", "coupon codes inside"); err != nil {
		t.Fatalf("create topic: %v", err)
	}
	res, err := env.app.RunSavedSearchNotification(ctx, env.alice.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	frame := readType(t, conn, "notification")
	if got := nestedString(frame, "data", "topic_id"); got != res.TopicID {
		t.Fatalf("expected topic %s, got %s", res.TopicID, got)
	}
	if got := nestedString(frame, "data", "kind"); got != string(model.NotificationSavedSearchResults) {
		t.Fatalf("unexpected kind %s", got)
	}

	if err := conn.WriteJSON(map[string]any{"type": "inbox"}); err != nil {
		t.Fatalf("request inbox: %v", err)
	}
	inbox := readType(t, conn, "inbox")
	if total, _ := inbox["total"].(float64); total != 1 {
		t.Fatalf("expected one message in inbox, got %v", inbox["total"])
	}
}

func TestHubPingAndBadPayload(t *testing.T) {
	env := setupHubTestEnv(t)
	conn := env.connectWS(t)
	defer conn.Close()
	_ = readType(t, conn, "ack")

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = readType(t, conn, "pong")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readType(t, conn, "error")
	if code, _ := frame["code"].(string); code != "BAD_PAYLOAD" {
		t.Fatalf("unexpected error code %v", frame["code"])
	}
}

func TestHubRejectsBadKey(t *testing.T) {
	env := setupHubTestEnv(t)
	bad := strings.Replace(env.wsURL, url.QueryEscape(env.aliceKey), "nope", 1)
	if _, _, err := websocket.DefaultDialer.Dial(bad, nil); err == nil {
		t.Fatal("expected dial to fail with a bad key")
	}
}

func TestAdminStatsCountsOpenSockets(t *testing.T) {
	env := setupHubTestEnv(t)
	conn := env.connectWS(t)
	_ = readType(t, conn, "ack")

	if got := env.socketStat(t); got != 1 {
		t.Fatalf("expected 1 open socket, got %d", got)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.socketStat(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed socket still counted")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

type hubTestEnv struct {
	app      *service.App
	baseURL  string
	adminKey string
	alice    model.User
	bob      model.User
	aliceKey string
	wsURL    string
}

func setupHubTestEnv(t *testing.T) hubTestEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "hub-test.db")

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
	alice, aliceKey, err := app.CreateUser(ctx, "alice", 1, false)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, _, err := app.CreateUser(ctx, "bob", 2, false)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	h := ws.NewHub(app, nil)
	router := api.NewRouter(handlers.New(app, db, cfg), app, h, app.Log)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return hubTestEnv{
		app:      app,
		baseURL:  ts.URL,
		adminKey: adminKey,
		alice:    alice,
		bob:      bob,
		aliceKey: aliceKey,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?api_key=" + url.QueryEscape(aliceKey),
	}
}

func (e hubTestEnv) connectWS(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func (e hubTestEnv) socketStat(t *testing.T) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.baseURL+"/api/v1/admin/stats", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.adminKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin stats: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Data struct {
			Stats map[string]int `json:"stats"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	n, ok := body.Data.Stats["ws_connections"]
	if !ok {
		t.Fatalf("stats missing ws_connections: %+v", body.Data.Stats)
	}
	return n
}

func readType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if got, _ := frame["type"].(string); got == want {
			return frame
		}
	}
	t.Fatalf("did not receive frame type %s", want)
	return nil
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read ws frame: %v", err)
	}
	return frame
}

func nestedString(m map[string]any, path ...string) string {
	cur := any(m)
	for _, part := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = node[part]
	}
	if s, ok := cur.(string); ok {
		return s
	}
	return ""
}
