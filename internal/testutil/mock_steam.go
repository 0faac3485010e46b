// Package testutil provides testing utilities for the Steam relay.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// Steam endpoint paths served by the mock.
const (
	PathPlayerSummaries = "/ISteamUser/GetPlayerSummaries/v2/"
	PathFriendList      = "/ISteamUser/GetFriendList/v1/"
	PathPlayerCount     = "/ISteamUserStats/GetNumberOfCurrentPlayers/v1/"
	PathAchievements    = "/ISteamUserStats/GetPlayerAchievements/v1/"
	PathGameSchema      = "/ISteamUserStats/GetSchemaForGame/v2/"
	PathOwnedGames      = "/IPlayerService/GetOwnedGames/v1/"
	PathRecentGames     = "/IPlayerService/GetRecentlyPlayedGames/v1/"
	PathSteamLevel      = "/IPlayerService/GetSteamLevel/v1/"
	PathBadges          = "/IPlayerService/GetBadges/v1/"
	PathAppNews         = "/ISteamNews/GetNewsForApp/v2/"
	PathAppDetails      = "/api/appdetails"
	PathFeatured        = "/api/featured"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSteam is a configurable mock Steam server for testing. One instance
// can stand in for both the Web API and the Store API.
type MockSteam struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount int
	pathCounts   map[string]int
	lastQuery    url.Values
	lastHeader   http.Header
}

// NewMockSteam creates a new mock Steam server.
func NewMockSteam() *MockSteam {
	mock := &MockSteam{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastQuery = r.URL.Query()
		mock.lastHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		// Unknown paths behave like Steam for a missing resource
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSteam) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSteam) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSteam) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastQuery = nil
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSteam) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSteam) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, resp)
	})
}

// SetSequence serves responses in order, repeating the last one once the
// sequence is used up.
func (m *MockSteam) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		writeResponse(w, r, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSteam) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockSteam) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockSteam) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// LastHeader returns the headers of the most recent request.
func (m *MockSteam) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// SetPlayerSummary serves a single player summary for any Steam ID.
func (m *MockSteam) SetPlayerSummary(steamID, personaName string) {
	m.SetResponse(PathPlayerSummaries, NewOKResponse(fmt.Sprintf(
		`{"response":{"players":[{"steamid":%q,"personaname":%q,"profileurl":"https://steamcommunity.com/id/test/","personastate":1,"communityvisibilitystate":3}]}}`,
		steamID, personaName,
	)))
}

// SetPlayerCount serves a live player count for any app.
func (m *MockSteam) SetPlayerCount(count int) {
	m.SetResponse(PathPlayerCount, NewOKResponse(fmt.Sprintf(
		`{"response":{"player_count":%d,"result":1}}`, count,
	)))
}

// SetAppDetails serves store details keyed by app ID; unknown apps report
// success=false like the real store.
func (m *MockSteam) SetAppDetails(names map[string]string) {
	m.SetHandler(PathAppDetails, func(w http.ResponseWriter, r *http.Request) {
		appID := r.URL.Query().Get("appids")
		name, ok := names[appID]

		var body string
		if ok {
			body = fmt.Sprintf(
				`{%q:{"success":true,"data":{"steam_appid":%s,"name":%q,"type":"game","is_free":false,"short_description":"test game","developers":["Valve"],"publishers":["Valve"]}}}`,
				appID, appID, name,
			)
		} else {
			body = fmt.Sprintf(`{%q:{"success":false}}`, appID)
		}
		writeResponse(w, r, NewOKResponse(body))
	})
}

// SetFeatured serves the featured Windows games list.
func (m *MockSteam) SetFeatured(items map[int]string) {
	body := `{"featured_win":[`
	first := true
	for id, name := range items {
		if !first {
			body += ","
		}
		first = false
		body += fmt.Sprintf(`{"id":%d,"name":%q,"final_price":999,"currency":"USD","discounted":false}`, id, name)
	}
	body += `]}`
	m.SetResponse(PathFeatured, NewOKResponse(body))
}

// NewOKResponse creates a standard 200 OK JSON response.
func NewOKResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
// An empty retryAfter omits the header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too Many Requests"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}
