package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matst80/rendezvous/internal/api"
	"github.com/matst80/rendezvous/internal/session"
)

func newBroker(t *testing.T) string {
	t.Helper()
	reg := session.NewRegistry()
	srv := httptest.NewServer(api.New(reg))
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return srv.URL
}

func runCmd(t *testing.T, server string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-server", server}, args...), strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestSendAndReceive(t *testing.T) {
	server := newBroker(t)
	out, err := runCmd(t, server, "", "create", "-download-header", "Content-Type=text/plain")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	var wg sync.WaitGroup
	var received string
	var recvErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		received, recvErr = runCmd(t, server, "", "recv", id)
	}()
	_, err = runCmd(t, server, "hello rendezvous", "send", id, "-")
	require.NoError(t, err)
	wg.Wait()
	require.NoError(t, recvErr)
	assert.Equal(t, "hello rendezvous", received)

	out, err = runCmd(t, server, "", "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "FINISHED"`)
	assert.Contains(t, out, `"bytes_transferred": 16`)

	out, err = runCmd(t, server, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestFailReachesPeer(t *testing.T) {
	server := newBroker(t)
	out, err := runCmd(t, server, "", "create")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = runCmd(t, server, "", "fail", id, "-status", "418", "-name", "Teapot", "-message", "short and stout")
	require.NoError(t, err)

	_, err = runCmd(t, server, "", "recv", id)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 418, apiErr.Status)
	assert.Equal(t, "Teapot", apiErr.Body.Name)
	assert.Equal(t, "418 Teapot: short and stout", apiErr.Error())
}

func TestErrors(t *testing.T) {
	server := newBroker(t)

	_, err := runCmd(t, server, "", "status", "missing")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "SessionNotFoundError", apiErr.Body.Name)

	_, err = runCmd(t, server, "", "create", "-download-header", "bad name=x")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = runCmd(t, server, "", "create", "-upload-header", "novalue")
	assert.Error(t, err)

	_, err = runCmd(t, server, "", "frobnicate")
	assert.EqualError(t, err, `unknown command "frobnicate"`)

	_, err = runCmd(t, server, "", "send")
	assert.EqualError(t, err, "send: missing stream id")

	_, err = runCmd(t, server, "")
	assert.Error(t, err)
}

func TestHeaderFlag(t *testing.T) {
	h := headerFlag{}
	require.NoError(t, h.Set("X-A=1=2"))
	assert.Equal(t, "1=2", h["X-A"])
	assert.Error(t, h.Set("=x"))
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := runCmd(t, srv.URL, "", "list")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Gateway", apiErr.Body.Name)
	assert.Equal(t, "upstream down", apiErr.Body.Message)
}

func TestRecvReportsFailedStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream/s-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`abc{"error":{"name":"StreamSourceError","message":"Stream source raised an error"}}`))
	})
	mux.HandleFunc("/stream/s-1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"s-1","state":"SRC_ERROR","active":false,"error":{"name":"StreamSourceError","message":"Stream source raised an error"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runCmd(t, srv.URL, "", "recv", "s-1")
	var failed *streamFailed
	require.True(t, errors.As(err, &failed), "%v", err)
	assert.Equal(t, "SRC_ERROR", failed.State)
	assert.Equal(t, "StreamSourceError", failed.Err.Name)
	assert.Equal(t, "stream ended in SRC_ERROR: StreamSourceError: Stream source raised an error", err.Error())
	assert.True(t, strings.HasPrefix(out, "abc"))
}
