package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o"},{"id":"gpt-4o-realtime-preview"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Available(t *testing.T) {
	srv := modelsAPI(t)
	var out, errOut bytes.Buffer

	code := run([]string{"-base-url", srv.URL + "/v1", "-key", "sk-test", "-model", "gpt-4o-realtime-preview"}, &out, &errOut)
	assert.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "model=gpt-4o-realtime-preview available=true")
	assert.Contains(t, out.String(), "models=2 realtime=1")
}

func TestRun_UnavailableModelFails(t *testing.T) {
	srv := modelsAPI(t)
	var out, errOut bytes.Buffer

	code := run([]string{"-base-url", srv.URL + "/v1", "-key", "sk-test", "-model", "gpt-realtime-next", "-json"}, &out, &errOut)
	assert.Equal(t, 1, code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, false, report["available"])
}

func TestRun_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run([]string{"-base-url", "http://127.0.0.1:1"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "OPENAI_API_KEY")
}
