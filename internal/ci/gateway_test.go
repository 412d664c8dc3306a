package ci

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger(t *testing.T) {
	var gotPath string
	var gotForm map[string][]string
	var gotRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotForm = r.PostForm
		gotRequestID = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 12345, "status": "created"}`))
	}))
	defer server.Close()

	client := NewClient()
	runID, err := client.Trigger(context.Background(), TriggerRequest{
		BaseURL:   server.URL,
		ProjectID: 42,
		Token:     "glptt-token",
		Ref:       "main",
		Variables: map[string]string{"INSTANCE_NAME": "acme-shop"},
	})
	require.NoError(t, err)

	assert.Equal(t, 12345, runID)
	assert.Equal(t, "/api/v4/projects/42/trigger/pipeline", gotPath)
	assert.Equal(t, []string{"glptt-token"}, gotForm["token"])
	assert.Equal(t, []string{"main"}, gotForm["ref"])
	assert.Equal(t, []string{"acme-shop"}, gotForm["variables[INSTANCE_NAME]"])
	assert.NotEmpty(t, gotRequestID)
}

func TestTriggerTrimsTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id": 1}`))
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Trigger(context.Background(), TriggerRequest{
		BaseURL:   server.URL + "/",
		ProjectID: 7,
		Token:     "t",
		Ref:       "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v4/projects/7/trigger/pipeline", gotPath)
}

func TestTriggerNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "insufficient permissions"}`))
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Trigger(context.Background(), TriggerRequest{
		BaseURL:   server.URL,
		ProjectID: 42,
		Token:     "bad",
		Ref:       "main",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAbortSendsMarkerVariables(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{"id": 2}`))
	}))
	defer server.Close()

	client := NewClient()
	err := client.Abort(context.Background(), TriggerRequest{
		BaseURL:   server.URL,
		ProjectID: 42,
		Token:     "glptt-token",
		Ref:       "main",
	}, 777)
	require.NoError(t, err)

	assert.Equal(t, []string{"true"}, gotForm["variables[ABORT_PIPELINE]"])
	assert.Equal(t, []string{"777"}, gotForm["variables[ABORT_PIPELINE_ID]"])
}
