package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadweaver/internal/config"
	"roadweaver/internal/store"
	"roadweaver/internal/weaver"
)

func newTestServer(t *testing.T, landmarks string) *httptest.Server {
	t.Helper()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	cfg := config.Default()
	cfg.InitialLocatingCount = 3
	m, err := weaver.NewManager(cfg, store.NewMemoryBackend(), weaver.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	t.Cleanup(func() {
		m.OnShutdown()
		m.Wait()
	})

	srv := httptest.NewServer(newServer(m, cfg, nil, 42, landmarks).routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, WorldResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out WorldResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func TestLoadTickUnload(t *testing.T) {
	srv := newTestServer(t, "")

	resp, body := post(t, srv, "/worlds/load", WorldRequest{World: "overworld"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Landmarks)
	assert.Equal(t, 2, body.Queued+body.Connections["COMPLETED"]+body.Connections["FAILED"]+body.Connections["GENERATING"])

	resp, _ = post(t, srv, "/worlds/load", WorldRequest{World: "overworld"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = post(t, srv, "/worlds/tick", WorldRequest{World: "overworld"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.Message, "admitted job")

	resp, _ = post(t, srv, "/worlds/player", PlayerRequest{World: "overworld", X: 500, Z: 500})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = post(t, srv, "/worlds/unload", WorldRequest{World: "overworld"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	resp, _ = post(t, srv, "/worlds/tick", WorldRequest{World: "overworld"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNetworkAndChunkEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landmarks.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[30,0]},"properties":{}}
	]}`), 0o644))
	srv := newTestServer(t, path)

	resp, body := post(t, srv, "/worlds/load", WorldRequest{World: "w", Seed: 9})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, body.Landmarks)

	get, err := http.Get(srv.URL + "/worlds/network?world=w")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	data, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3) // two landmarks, one connection

	raw, _ := json.Marshal(ChunkRequest{World: "w", ChunkX: 0, ChunkZ: 0})
	chunk, err := http.Post(srv.URL+"/worlds/chunk", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer chunk.Body.Close()
	require.Equal(t, http.StatusOK, chunk.StatusCode)
	var placements ChunkResponse
	require.NoError(t, json.NewDecoder(chunk.Body).Decode(&placements))
	assert.NotNil(t, placements.Placements)

	missing, err := http.Get(srv.URL + "/worlds/network?world=nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthAndMethods(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ready", health["status"])
	assert.Equal(t, false, health["pool"])

	wrong, err := http.Get(srv.URL + "/worlds/load")
	require.NoError(t, err)
	wrong.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, wrong.StatusCode)

	bad, err := http.Post(srv.URL+"/worlds/load", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/worlds/load", nil)
	opt, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	opt.Body.Close()
	assert.Equal(t, http.StatusOK, opt.StatusCode)
	assert.Equal(t, "*", opt.Header.Get("Access-Control-Allow-Origin"))
}

func TestOpenBackend(t *testing.T) {
	for _, kind := range []string{"memory", "file", "level"} {
		b, err := openBackend(kind, filepath.Join(t.TempDir(), kind))
		require.NoError(t, err, kind)
		require.NoError(t, b.Close())
	}
	_, err := openBackend("tape", "")
	assert.Error(t, err)
}
