package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/cache"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/encoder"
	"github.com/23skdu/longbow-bowyer/internal/encoding"
)

func testMux(t *testing.T) *http.ServeMux {
	t.Helper()
	cfg := encoder.DefaultConfig(100)
	cfg.HiddenSize = 8
	cfg.NumHiddenLayers = 1
	cfg.NumAttentionHeads = 2
	cfg.IntermediateSize = 16
	cfg.MaxPositionEmbeddings = 16
	cfg.TypeVocabSize = 2

	m, err := encoder.NewModelSeeded(device.NewCPUBackend(), cfg, 55)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewServer(encoding.NewService(m, cache.NewMapCache(), 8)).routes(mux)
	return mux
}

func TestEncodeCBOR(t *testing.T) {
	mux := testMux(t)

	body, err := cbor.Marshal(encodeRequest{IDs: [][]int{{1, 2, 3}, {4, 5, 6}}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/encode", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp encodeResponse
	require.NoError(t, cbor.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 8, resp.Hidden)
	require.Len(t, resp.Vectors, 2)
	require.Len(t, resp.Vectors[0], 8)
}

func TestEncodeJSON(t *testing.T) {
	mux := testMux(t)

	body, err := json.Marshal(encodeRequest{
		IDs:  [][]int{{1, 2, 3}},
		Mask: [][]int{{1, 1, 0}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/encode/json", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp encodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Vectors, 1)
	require.Len(t, resp.Vectors[0], 8)
}

func TestEncodeRejectsGet(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/encode", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEncodeBadBody(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/encode/json", bytes.NewReader([]byte("{"))))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEncodeExtentMismatchIsBadRequest(t *testing.T) {
	mux := testMux(t)

	body, err := json.Marshal(encodeRequest{
		IDs:  [][]int{{1, 2, 3}},
		Mask: [][]int{{1, 1}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/encode/json", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestParseIDRows(t *testing.T) {
	rows, err := parseIDRows("1,2,3; 4,5,6")
	require.NoError(t, err)
	require.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}}, rows)

	_, err = parseIDRows("1,x")
	require.Error(t, err)
}
