package api

import (
	"time"

	"github.com/samcharles93/affine/internal/affine"
)

// CheckpointSummary is one entry of the checkpoint listing.
type CheckpointSummary struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// CheckpointDetail describes an opened checkpoint: its manifest plus a
// summary of every stored variable.
type CheckpointDetail struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Layer     affine.Config  `json:"layer"`
	Variables []VariableInfo `json:"variables"`
}

// VariableInfo summarizes one stored variable without exposing its payload.
type VariableInfo struct {
	Key   string `json:"key"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
	Elems int    `json:"elems"`
}

// ErrorBody is the error envelope returned by all endpoints.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
