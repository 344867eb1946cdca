package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/formreps/internal/session"
)

type currentSession struct {
	Status  session.Info    `json:"status"`
	Metrics json.RawMessage `json:"metrics"`
}

func (h *handlers) currentSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	info, err := h.ds.Status(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := h.ds.ExerciseData(ctx)
	if err != nil {
		h.log.Warn("current_session: exercise data failed", "error", err)
		metrics = json.RawMessage("null")
	}

	data, err := json.Marshal(currentSession{Status: info, Metrics: metrics})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
