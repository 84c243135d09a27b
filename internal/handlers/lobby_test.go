package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskforge/lobby/internal/broadcaster"
	"github.com/duskforge/lobby/internal/codemint"
	"github.com/duskforge/lobby/internal/connectionhub"
	"github.com/duskforge/lobby/internal/matchmaking"
	"github.com/duskforge/lobby/internal/playerdirectory"
	"github.com/duskforge/lobby/internal/registry"
)

type testStack struct {
	ts  *httptest.Server
	b   *broadcaster.Broadcaster
	reg *registry.Registry
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	b := broadcaster.New(nil)
	dir := playerdirectory.NewStatic(map[string]string{"devA": "Alice", "devB": "Bob"})
	reg := registry.New(registry.Config{
		MaxPlayers:           2,
		CountdownSeconds:     3,
		PostGameGraceSeconds: 1,
	}, codemint.New(4), b, nil, dir, nil, nil)
	queue := matchmaking.New(reg, nil, 30)
	reg.SetLeaveQueueHook(queue.LeaveQueue)
	hub := connectionhub.New(reg, nil, nil)

	ts := httptest.NewServer(NewServer(reg, queue, hub, nil).Router([]string{"*"}, nil))
	t.Cleanup(ts.Close)
	return &testStack{ts: ts, b: b, reg: reg}
}

func newTestServer(t *testing.T) *httptest.Server {
	return newTestStack(t).ts
}

func do(t *testing.T, ts *httptest.Server, method, path, deviceID string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if deviceID != "" {
		req.Header.Set("X-Device-ID", deviceID)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	return res, decoded
}

func TestMissingDeviceHeaderIsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/lobby/create", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, false, body["success"])

	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "unauthenticated", errBody["kind"])
	require.Equal(t, float64(http.StatusUnauthorized), body["status_code"])
}

func TestCreateReturnsLobbySnapshot(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, body["success"])

	lobby := body["lobby"].(map[string]interface{})
	require.Len(t, lobby["code"].(string), 4)
	require.Equal(t, "waiting", lobby["status"])
	require.Equal(t, float64(1), lobby["current_players"])

	players := lobby["players"].([]interface{})
	seat := players[0].(map[string]interface{})
	require.Equal(t, "devA", seat["device_id"])
	require.Equal(t, "Alice", seat["user_name"])
	require.Equal(t, false, seat["is_ready"])
}

func TestCreateTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)

	res, _ := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	errBody := body["error"].(map[string]interface{})
	require.Equal(t, "already_in_lobby", errBody["kind"])
}

func TestJoinUnknownCodeIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/lobby/join", "devB", map[string]string{"code": "ZZZZ"})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	errBody := body["error"].(map[string]interface{})
	require.Equal(t, "not_found", errBody["kind"])
}

func TestJoinAcceptsLowercaseCodes(t *testing.T) {
	ts := newTestServer(t)

	_, created := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	code := created["lobby"].(map[string]interface{})["code"].(string)

	res, body := do(t, ts, http.MethodPost, "/lobby/join", "devB", map[string]string{"code": strings.ToLower(code)})
	require.Equal(t, http.StatusOK, res.StatusCode)
	lobby := body["lobby"].(map[string]interface{})
	require.Equal(t, float64(2), lobby["current_players"])
}

func TestReadyFlowReachesCountdown(t *testing.T) {
	ts := newTestServer(t)

	_, created := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	code := created["lobby"].(map[string]interface{})["code"].(string)

	res, _ := do(t, ts, http.MethodPost, "/lobby/join", "devB", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, ts, http.MethodPost, "/lobby/ready", "devA", map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "waiting", body["lobby"].(map[string]interface{})["status"])

	res, body = do(t, ts, http.MethodPost, "/lobby/ready", "devB", map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusOK, res.StatusCode)
	lobby := body["lobby"].(map[string]interface{})
	require.Equal(t, "countdown", lobby["status"])
	require.NotNil(t, lobby["countdown_start_time"])

	// Unready flips the lobby back and clears every ready flag.
	res, body = do(t, ts, http.MethodPost, "/lobby/ready", "devA", map[string]bool{"is_ready": false})
	require.Equal(t, http.StatusOK, res.StatusCode)
	lobby = body["lobby"].(map[string]interface{})
	require.Equal(t, "waiting", lobby["status"])
	for _, p := range lobby["players"].([]interface{}) {
		require.Equal(t, false, p.(map[string]interface{})["is_ready"])
	}
}

func TestReadyWithoutLobbyConflicts(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/lobby/ready", "devA", map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	errBody := body["error"].(map[string]interface{})
	require.Equal(t, "not_in_lobby", errBody["kind"])
}

func TestStatusWithoutLobbyOmitsLobby(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodGet, "/lobby/status", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, body["success"])
	_, present := body["lobby"]
	require.False(t, present)
}

func TestLeaveIsAlwaysSuccessful(t *testing.T) {
	ts := newTestServer(t)

	res, _ := do(t, ts, http.MethodPost, "/lobby/leave", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, _ = do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	res, _ = do(t, ts, http.MethodPost, "/lobby/leave", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, body := do(t, ts, http.MethodGet, "/lobby/status", "devA", nil)
	_, present := body["lobby"]
	require.False(t, present)
}

func TestFindMatchPairsTwoDevices(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/lobby/find_match", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, body["in_queue"])
	require.Equal(t, float64(1), body["queue_position"])
	require.Equal(t, float64(30), body["estimated_wait_time"])

	res, body = do(t, ts, http.MethodPost, "/lobby/find_match", "devB", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, body["in_queue"])
	lobby := body["lobby"].(map[string]interface{})
	require.Equal(t, float64(2), lobby["current_players"])

	players := lobby["players"].([]interface{})
	require.Equal(t, "devA", players[0].(map[string]interface{})["device_id"])
	require.Equal(t, "devB", players[1].(map[string]interface{})["device_id"])

	// Both are out of the queue now.
	_, body = do(t, ts, http.MethodGet, "/lobby/queue_status", "devA", nil)
	require.Equal(t, false, body["in_queue"])
}

func TestQueueStatusAndLeaveQueue(t *testing.T) {
	ts := newTestServer(t)

	_, _ = do(t, ts, http.MethodPost, "/lobby/find_match", "devA", nil)

	_, body := do(t, ts, http.MethodGet, "/lobby/queue_status", "devA", nil)
	require.Equal(t, true, body["in_queue"])
	require.Equal(t, float64(1), body["queue_position"])

	res, _ := do(t, ts, http.MethodPost, "/lobby/leave_queue", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, body = do(t, ts, http.MethodGet, "/lobby/queue_status", "devA", nil)
	require.Equal(t, false, body["in_queue"])
}

func TestCreateEvictsDeviceFromQueue(t *testing.T) {
	ts := newTestServer(t)

	_, _ = do(t, ts, http.MethodPost, "/lobby/find_match", "devA", nil)
	res, _ := do(t, ts, http.MethodPost, "/lobby/create", "devA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, body := do(t, ts, http.MethodGet, "/lobby/queue_status", "devA", nil)
	require.Equal(t, false, body["in_queue"])
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/lobby/join", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("X-Device-ID", "devA")

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}
