package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gatewayd/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		method string
		path   string
		body   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "gateway-history")
	e := history.NewEvent(history.EventStop, history.Record{
		PID:       321,
		Reason:    "manual_stop",
		Actor:     "user",
		Escalated: true,
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/gateway-history/_doc/"+e.ID, path)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "stop", got["type"])
	assert.Equal(t, e.ID, got["id"])
	rec, ok := got["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "manual_stop", rec["reason"])
	assert.Equal(t, true, rec["escalated"])
	assert.EqualValues(t, 321, rec["pid"])
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.NewEvent(history.EventStart, history.Record{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	err := New("http://127.0.0.1:1", "idx").Send(context.Background(), history.NewEvent(history.EventStart, history.Record{}))
	assert.Error(t, err)
}
