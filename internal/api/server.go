// Package api exposes a read-only HTTP interface over a directory of
// checkpoint files, for inspecting what a checkpoint contains without
// loading it into a layer.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/affine/internal/logger"
	"github.com/samcharles93/affine/internal/version"
	"github.com/samcharles93/affine/pkg/ckpt"
)

// CheckpointExt is the file extension served by the listing endpoint.
const CheckpointExt = ".ack"

type Server struct {
	dir string
	log logger.Logger
}

// NewServer serves checkpoints from the given directory.
func NewServer(dir string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{dir: dir, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/checkpoints", s.handleList)
	e.GET("/v1/checkpoints/:name", s.handleDetail)
	e.GET("/v1/checkpoints/:name/config", s.handleConfig)
	e.GET("/v1/version", s.handleVersion)
}

func (s *Server) handleList(c *echo.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("listing checkpoint directory", "dir", s.dir, "error", err)
		return writeServerError(c, "cannot read checkpoint directory")
	}
	out := make([]CheckpointSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), CheckpointExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, CheckpointSummary{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleDetail(c *echo.Context) error {
	f, err := s.open(c)
	if err != nil || f == nil {
		return err
	}
	defer func() { _ = f.Close() }()

	man := f.Manifest()
	detail := CheckpointDetail{
		ID:        man.ID,
		CreatedAt: man.CreatedAt,
		Layer:     man.Layer,
	}
	vars := f.Variables()
	for i := 0; i < vars.Len(); i++ {
		k := strconv.Itoa(i)
		v, ok := vars.Get(k)
		if !ok {
			return writeServerError(c, "variable index inconsistent")
		}
		detail.Variables = append(detail.Variables, VariableInfo{
			Key:   k,
			DType: v.DType.String(),
			Shape: v.Shape,
			Elems: v.Elems(),
		})
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleConfig(c *echo.Context) error {
	f, err := s.open(c)
	if err != nil || f == nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return c.JSON(http.StatusOK, f.Manifest().Layer)
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Resolve())
}

// open resolves the :name parameter to a checkpoint inside the served
// directory. A nil file with a nil error means the response has already
// been written.
func (s *Server) open(c *echo.Context) (*ckpt.File, error) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, writeBadRequest(c, "invalid checkpoint name")
	}
	path := filepath.Join(s.dir, name)
	f, err := ckpt.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, writeNotFound(c, "no such checkpoint")
		}
		s.log.Warn("opening checkpoint", "path", path, "error", err)
		return nil, writeBadRequest(c, "unreadable checkpoint: "+err.Error())
	}
	return f, nil
}
