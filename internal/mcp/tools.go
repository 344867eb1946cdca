package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
)

func exerciseNames() []string {
	ids := exercise.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

// --- Tool definitions ---

var toolGetExerciseData = mcp.NewTool("get_exercise_data",
	mcp.WithDescription("Live metrics of the current session: correct and incorrect repetition counts, the stage or form-fault message, and the exercise's joint angles in degrees (-1 when no pose is visible)."),
)

var toolGetSessionStatus = mcp.NewTool("get_session_status",
	mcp.WithDescription("Whether a session is running or paused, which exercise and camera it uses, when it started and its counters."),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("Recorded sessions, most recent first, with their final counters and why they ended."),
	mcp.WithString("exercise", mcp.Description("Only sessions of this exercise"), mcp.Enum(exerciseNames()...)),
	mcp.WithNumber("limit", mcp.Description("Maximum number of sessions. Defaults to 50.")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("One recorded session with every repetition in order, including whether it was correct and the fault label."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session ID (UUID)")),
)

var toolTogglePause = mcp.NewTool("toggle_pause",
	mcp.WithDescription("Pause or resume detection in the running session. Paused sessions keep streaming video but stop counting."),
)

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("Exercise identifiers accepted by the video feed and the analysis endpoints."),
)

// --- Tool handlers ---

func (h *handlers) getExerciseData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := h.ds.ExerciseData(ctx)
	if err != nil {
		h.log.Error("mcp get_exercise_data", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *handlers) getSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := h.ds.Status(ctx)
	if err != nil {
		h.log.Error("mcp get_session_status", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(info)
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("exercise", "")
	if name != "" {
		if _, err := exercise.Parse(name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	sessions, err := h.ds.ListSessions(ctx, name, limit)
	if err != nil {
		h.log.Error("mcp list_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sessions)
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	detail, err := h.ds.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("session not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(detail)
}

func (h *handlers) togglePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paused, err := h.ds.TogglePause(ctx)
	if errors.Is(err, session.ErrNoActiveSession) {
		return mcp.NewToolResultError("no active session to pause or resume"), nil
	}
	if err != nil {
		h.log.Error("mcp toggle_pause", "error", err)
		return mcp.NewToolResultError("toggle failed: " + err.Error()), nil
	}
	if paused {
		return mcp.NewToolResultText("paused"), nil
	}
	return mcp.NewToolResultText("resumed"), nil
}

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := h.ds.Exercises(ctx)
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(ids)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
