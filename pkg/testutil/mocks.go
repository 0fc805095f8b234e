package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockPrometheusServer is a mock Prometheus HTTP API that serves
// canned instant-query results keyed by substring match on the query.
type MockPrometheusServer struct {
	Server *httptest.Server

	mu         sync.RWMutex
	results    map[string]float64
	RequestLog []string
	Delay      time.Duration
	ShouldFail bool
}

// NewMockPrometheusServer creates a mock Prometheus server
func NewMockPrometheusServer() *MockPrometheusServer {
	mock := &MockPrometheusServer{
		results: make(map[string]float64),
	}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handleQuery))
	return mock
}

// SetResult registers a value returned for queries containing the substring
func (m *MockPrometheusServer) SetResult(querySubstring string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[querySubstring] = value
}

func (m *MockPrometheusServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	query := r.FormValue("query")

	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, query)
	delay := m.Delay
	fail := m.ShouldFail
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "error",
			"errorType": "internal",
			"error":     "query engine unavailable",
		})
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []map[string]interface{}{}
	for substring, value := range m.results {
		if substring != "" && strings.Contains(query, substring) {
			result = append(result, map[string]interface{}{
				"metric": map[string]string{"publisher": "test"},
				"value":  []interface{}{float64(time.Now().Unix()), fmt.Sprintf("%v", value)},
			})
			break
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"resultType": "vector",
			"result":     result,
		},
	})
}

// Close shuts down the mock server
func (m *MockPrometheusServer) Close() {
	m.Server.Close()
}

// MockWebhookServer records alert webhook deliveries
type MockWebhookServer struct {
	Server *httptest.Server

	mu         sync.RWMutex
	Received   []map[string]interface{}
	StatusCode int
}

// NewMockWebhookServer creates a mock webhook receiver
func NewMockWebhookServer() *MockWebhookServer {
	mock := &MockWebhookServer{StatusCode: http.StatusOK}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockWebhookServer) handle(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	json.NewDecoder(r.Body).Decode(&payload)

	m.mu.Lock()
	m.Received = append(m.Received, payload)
	status := m.StatusCode
	m.mu.Unlock()

	w.WriteHeader(status)
}

// Count returns the number of deliveries received
func (m *MockWebhookServer) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Received)
}

// Close shuts down the mock server
func (m *MockWebhookServer) Close() {
	m.Server.Close()
}
