package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/affine/internal/affine"
	"github.com/samcharles93/affine/internal/logger"
	"github.com/samcharles93/affine/pkg/ckpt"
)

func newTestEcho(t *testing.T) (*echo.Echo, string) {
	t.Helper()
	dir := t.TempDir()

	l, err := affine.New(3, affine.Options{Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	if err := l.Build(4); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := l.Quantize(affine.ModeInt8); err != nil {
		t.Fatalf("quantize: %v", err)
	}
	store := affine.NewMemStore()
	if err := l.SaveVariables(store); err != nil {
		t.Fatalf("save variables: %v", err)
	}
	path := filepath.Join(dir, "layer"+CheckpointExt)
	if err := ckpt.Save(path, ckpt.NewManifest(l.Config()), store); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	e := echo.New()
	NewServer(dir, logger.Discard()).Register(e)
	return e, dir
}

func doGet(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListCheckpoints(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/checkpoints")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var list []CheckpointSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Name != "layer"+CheckpointExt {
		t.Fatalf("listing %+v, want one checkpoint named layer%s", list, CheckpointExt)
	}
	if list[0].Size == 0 {
		t.Fatal("checkpoint size not reported")
	}
}

func TestCheckpointDetail(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/checkpoints/layer"+CheckpointExt)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var detail CheckpointDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.ID == "" {
		t.Fatal("manifest id missing")
	}
	if detail.Layer.Units != 3 || detail.Layer.Mode != "int8" {
		t.Fatalf("layer config %+v, want 3 int8 units", detail.Layer)
	}
	// int8 with bias: kernel, bias, scales.
	if len(detail.Variables) != 3 {
		t.Fatalf("%d variables, want 3", len(detail.Variables))
	}
	if detail.Variables[0].DType != "i8" || detail.Variables[0].Elems != 12 {
		t.Fatalf("kernel variable %+v, want 12 i8 elements", detail.Variables[0])
	}
}

func TestCheckpointConfig(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/checkpoints/layer"+CheckpointExt+"/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var cfg affine.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.InputDim != 4 {
		t.Fatalf("config %+v, want input dim 4", cfg)
	}
}

func TestCheckpointNotFound(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/checkpoints/missing"+CheckpointExt)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestCheckpointNameRejected(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/checkpoints/..%2Fescape")
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want a rejection", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doGet(t, e, "/v1/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["version"]; !ok {
		t.Fatal("version field missing")
	}
}
