package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", WithRequestTimeout(2*time.Second))
}

func TestListSessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `[{"id":"s2","title":"second","created_at":"2026-10-14T09:30:00.123456"},{"id":"s1","title":"first"}]`)
	})
	c := newBackend(t, mux)

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, 2026, sessions[0].Created().Year())
	assert.True(t, sessions[1].Created().IsZero())
}

func TestCreateSessionSendsMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is the tallest tree?", body["message"])
		_, _ = io.WriteString(w, `{"id":"abc-123"}`)
	})
	c := newBackend(t, mux)

	id, err := c.CreateSession(context.Background(), "what is the tallest tree?")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestCreateSessionWithoutID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	c := newBackend(t, mux)

	_, err := c.CreateSession(context.Background(), "hi")
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "create session", netErr.Op)
}

func TestFetchHistoryPreservesOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)
	})
	c := newBackend(t, mux)

	msgs, err := c.FetchHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}, msgs)
}

func TestDirectoryFailuresAreNetworkErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database is locked", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	})
	c := newBackend(t, mux)

	_, err := c.ListSessions(context.Background())
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusInternalServerError, netErr.Status)
	assert.Contains(t, netErr.Error(), "database is locked")

	_, err = c.FetchHistory(context.Background(), "s1")
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "fetch history", netErr.Op)
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(base, WithRequestTimeout(time.Second))
	_, err := c.ListSessions(context.Background())
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Zero(t, netErr.Status)
	assert.Equal(t, fmt.Sprintf("list sessions: %v", netErr.Err), netErr.Error())
}
