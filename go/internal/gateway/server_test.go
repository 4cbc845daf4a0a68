package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/game"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/store"
)

type stubHistory struct {
	rounds    []models.RoundResult
	err       error
	lastRoom  string
	lastLimit int
}

func (s *stubHistory) RecentRounds(_ context.Context, room string, limit int) ([]models.RoundResult, error) {
	s.lastRoom, s.lastLimit = room, limit
	return s.rounds, s.err
}

type testServer struct {
	http *httptest.Server
	reg  *game.Registry
	srv  *Server
}

func startServer(t *testing.T, history HistorySource, checks ...namedCheck) *testServer {
	t.Helper()

	backend := store.NewMemoryBackend(rand.New(rand.NewSource(3)))
	require.NoError(t, store.Seed(context.Background(), backend, cards.Decks{
		Whites: []string{"Alpha.", "Beta.", "Gamma.", "Delta.", "Epsilon.", "Zeta.", "Eta.", "Theta."},
		Blacks: []string{"Why _?"},
	}))

	loop := game.NewLoop(clockwork.NewRealClock(), 256)
	reg := game.NewRegistry(game.DefaultConfig(), loop, game.Deps{Backend: backend})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	srv := NewServer(reg, DefaultConnectionConfig(), history)
	for _, c := range checks {
		srv.AddHealthCheck(c.name, c.check)
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	hs := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Connections().CloseAll()
		hs.Close()
		cancel()
		<-done
	})
	return &testServer{http: hs, reg: reg, srv: srv}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// await reads frames until one carries a message matching pred.
func await(t *testing.T, conn *websocket.Conn, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var batch []map[string]any
		require.NoError(t, json.Unmarshal(data, &batch))
		for _, m := range batch {
			if pred(m) {
				return m
			}
		}
	}
}

func status(text string) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["a"] == "set" && m["status"] == text
	}
}

func account(m map[string]any) bool {
	return m["a"] == "set" && m["t"] == "account"
}

func TestServer_LoginAndRename(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, `{"a":"login","id":"42"}`)
	msg := await(t, conn, account)
	assert.Equal(t, "", msg["name"])

	send(t, conn, `{"a":"setName","name":"  Ada   Lovelace "}`)
	await(t, conn, status(`Your name is now "Ada Lovelace".`))

	send(t, conn, `{"a":"login","id":"42"}`)
	await(t, conn, status("Can't login."))
}

func TestServer_RequiresLogin(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, `{"a":"join","game":"1"}`)
	await(t, conn, status("Not logged in!"))
}

func TestServer_BadTokenCanRetry(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, `{"a":"login","id":"not-digits"}`)
	await(t, conn, status("Bad id."))

	send(t, conn, `{"a":"login","id":"7"}`)
	await(t, conn, account)
}

func TestServer_ProtocolErrorCloses(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, `{"a":"dance"}`)
	msg := await(t, conn, status("No handler."))
	assert.Equal(t, true, msg["error"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			assert.True(t, errors.As(err, &closeErr), "expected a close frame, got %v", err)
			break
		}
	}
}

func TestServer_SecondConnectionIsRefused(t *testing.T) {
	ts := startServer(t, nil)
	first := ts.dial(t)
	send(t, first, `{"a":"login","id":"9"}`)
	await(t, first, account)

	second := ts.dial(t)
	send(t, second, `{"a":"login","id":"9"}`)
	await(t, second, status("Already connected."))

	send(t, second, `{"a":"chat","text":"hello"}`)
	await(t, second, status("Already connected."))
}

func TestServer_Watch(t *testing.T) {
	ts := startServer(t, nil)
	first := ts.dial(t)
	send(t, first, `{"a":"login","id":"9"}`)
	await(t, first, account)
	send(t, first, `{"a":"join","game":"2"}`)
	await(t, first, func(m map[string]any) bool { return m["a"] == "set" && m["canJoin"] == false })

	send(t, first, `{"a":"watch","game":"3"}`)
	await(t, first, status("Already in a game!"))

	second := ts.dial(t)
	send(t, second, `{"a":"login","id":"9"}`)
	await(t, second, status("Already connected."))

	send(t, second, `{"a":"watch","game":"2"}`)
	await(t, second, func(m map[string]any) bool {
		roster, ok := m["roster"].([]any)
		if m["a"] != "set" || !ok {
			return false
		}
		for _, entry := range roster {
			if e, ok := entry.(map[string]any); ok && e["id"] == "9" && e["kind"] == "player" {
				return true
			}
		}
		return false
	})
}

func TestServer_ChatAndSuggest(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, `{"a":"login","id":"5"}`)
	await(t, conn, account)

	send(t, conn, `{"a":"chat","text":"hi"}`)
	await(t, conn, status("Set a name first."))

	send(t, conn, `{"a":"setName","name":"Bo"}`)
	await(t, conn, status(`Your name is now "Bo".`))

	send(t, conn, `{"a":"chat","text":"hello room"}`)
	line := await(t, conn, func(m map[string]any) bool { return m["a"] == "add" })
	assert.Contains(t, string(mustJSON(t, line)), "hello room")

	send(t, conn, `{"a":"suggest","text":"A brand new card."}`)
	await(t, conn, status("Thanks for the suggestion!"))
	send(t, conn, `{"a":"suggest","text":"A brand new card."}`)
	await(t, conn, status("Already suggested."))
}

func TestServer_JoinAndLeave(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, `{"a":"login","id":"11"}`)
	await(t, conn, account)

	send(t, conn, `{"a":"leave"}`)
	await(t, conn, status("Not playing!"))

	send(t, conn, `{"a":"join","game":"1"}`)
	await(t, conn, func(m map[string]any) bool { return m["a"] == "set" && m["canJoin"] == false })
	send(t, conn, `{"a":"join","game":"1"}`)
	await(t, conn, status("Already playing."))

	send(t, conn, `{"a":"elect","cards":["Alpha."]}`)
	await(t, conn, status("Not choosing right now!"))
}

func TestServer_MisshapenCardsKeepConnection(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, `{"a":"login","id":"12"}`)
	await(t, conn, account)
	send(t, conn, `{"a":"join","game":"1"}`)
	await(t, conn, func(m map[string]any) bool { return m["a"] == "set" && m["canJoin"] == false })

	send(t, conn, `{"a":"submit","cards":"Alpha."}`)
	cleared := await(t, conn, func(m map[string]any) bool { return m["a"] == "select" })
	assert.Empty(t, cleared["cards"])

	send(t, conn, `{"a":"submit","cards":["Alpha.",7]}`)
	msg := await(t, conn, status("Invalid choices!"))
	assert.Nil(t, msg["error"])

	send(t, conn, `{"a":"elect","cards":[{"x":1}]}`)
	await(t, conn, status("Invalid choice!"))

	// Still open and still served.
	send(t, conn, `{"a":"elect","cards":["Alpha."]}`)
	await(t, conn, status("Not choosing right now!"))
}

func TestServer_HealthAndStats(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, `{"a":"login","id":"1"}`)
	await(t, conn, account)

	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.http.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Players     int             `json:"players"`
		Rooms       []game.Snapshot `json:"rooms"`
		Connections map[string]any  `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Players)
	require.Len(t, stats.Rooms, 1)
	assert.Equal(t, "1", stats.Rooms[0].ID)
	assert.EqualValues(t, 1, stats.Connections["total_connections"])
}

func TestServer_History(t *testing.T) {
	history := &stubHistory{rounds: []models.RoundResult{{RoomID: "1", Prompt: "Why _?", WinnerID: "3"}}}
	ts := startServer(t, history)

	resp, err := http.Get(ts.http.URL + "/rooms/1/history?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rounds []models.RoundResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rounds))
	require.Len(t, rounds, 1)
	assert.Equal(t, "3", rounds[0].WinnerID)
	assert.Equal(t, "1", history.lastRoom)
	assert.Equal(t, maxHistoryLimit, history.lastLimit)

	bad, err := http.Get(ts.http.URL + "/rooms/1/history?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	history.err = errors.New("db down")
	failed, err := http.Get(ts.http.URL + "/rooms/1/history")
	require.NoError(t, err)
	failed.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
	assert.Equal(t, defaultHistoryLimit, history.lastLimit)
}

func TestServer_HistoryDisabled(t *testing.T) {
	ts := startServer(t, nil)
	resp, err := http.Get(ts.http.URL + "/rooms/1/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestServer_HealthReportsFailingDependency(t *testing.T) {
	ts := startServer(t, nil,
		namedCheck{name: "redis", check: func(context.Context) error { return nil }},
		namedCheck{name: "nats", check: func(context.Context) error { return errors.New("disconnected") }},
	)

	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Healthy)
	assert.Equal(t, map[string]string{"redis": "ok", "nats": "down"}, status.Checks)
	assert.Equal(t, []string{"nats: disconnected"}, status.Errors)
}
