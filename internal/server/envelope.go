package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dpetranov/coopsched/pkg/models"
)

// CommandRequest is the inbound message envelope: an opaque correlation id,
// a command name, and a command-specific payload.
type CommandRequest struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandResponse is correlated to its request by ID. Exactly one of Result
// and Error is populated.
type CommandResponse struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TaskRequest is the add_task payload.
type TaskRequest struct {
	ID            string   `json:"id,omitempty"`
	Type          string   `json:"type"`
	Priority      string   `json:"priority,omitempty"`
	Data          any      `json:"data,omitempty"`
	Interruptible bool     `json:"interruptible,omitempty"`
	RetryCount    int      `json:"retry_count,omitempty"`
	RetryStrategy string   `json:"retry_strategy,omitempty"`
	RetryBaseMS   int      `json:"retry_base_ms,omitempty"`
	TimeoutMS     int      `json:"timeout_ms,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
}

func (r TaskRequest) TaskConfig() models.TaskConfig {
	strategy := models.RetryStrategy(r.RetryStrategy)
	if strategy != models.ExponentialRetry {
		strategy = models.LinearRetry
	}
	return models.TaskConfig{
		ID:             r.ID,
		Type:           r.Type,
		Priority:       models.ParsePriority(r.Priority),
		Data:           r.Data,
		Interruptible:  r.Interruptible,
		RetryCount:     r.RetryCount,
		RetryStrategy:  strategy,
		RetryBaseDelay: time.Duration(r.RetryBaseMS) * time.Millisecond,
		Timeout:        time.Duration(r.TimeoutMS) * time.Millisecond,
		Dependencies:   r.Dependencies,
	}
}

// taskRef is the payload of cancel_task, task_status and task_result.
type taskRef struct {
	TaskID string `json:"task_id"`
}

// TaskResultResponse carries a terminal task's outcome.
type TaskResultResponse struct {
	TaskID string `json:"task_id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleCommand dispatches an envelope onto the documented scheduler
// operations. Envelope errors always come back as a correlated response with
// ok=false, never as a bare HTTP error, so clients can multiplex.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	writeJSON(w, http.StatusOK, s.execute(req))
}

func (s *Server) execute(req CommandRequest) CommandResponse {
	resp := CommandResponse{ID: req.ID}
	fail := func(msg string) CommandResponse {
		resp.OK = false
		resp.Error = msg
		return resp
	}

	switch req.Command {
	case "add_task":
		var tr TaskRequest
		if err := json.Unmarshal(req.Payload, &tr); err != nil {
			return fail("invalid add_task payload")
		}
		id, err := s.engine.AddTask(tr.TaskConfig())
		if err != nil {
			return fail(err.Error())
		}
		resp.OK = true
		resp.Result = map[string]string{"task_id": id}

	case "cancel_task":
		var ref taskRef
		if err := json.Unmarshal(req.Payload, &ref); err != nil {
			return fail("invalid cancel_task payload")
		}
		resp.OK = true
		resp.Result = map[string]bool{"cancelled": s.engine.CancelTask(ref.TaskID)}

	case "task_status":
		var ref taskRef
		if err := json.Unmarshal(req.Payload, &ref); err != nil {
			return fail("invalid task_status payload")
		}
		info, ok := s.engine.TaskInfo(ref.TaskID)
		if !ok {
			return fail("unknown task id")
		}
		resp.OK = true
		resp.Result = info

	case "task_result":
		var ref taskRef
		if err := json.Unmarshal(req.Payload, &ref); err != nil {
			return fail("invalid task_result payload")
		}
		value, cause, ok := s.engine.TaskResult(ref.TaskID)
		if !ok {
			return fail("no result available")
		}
		result := TaskResultResponse{TaskID: ref.TaskID, Result: value}
		if cause != nil {
			result.Error = cause.Error()
		}
		resp.OK = true
		resp.Result = result

	case "stats":
		resp.OK = true
		resp.Result = s.engine.Stats()

	default:
		return fail("unknown command " + req.Command)
	}
	return resp
}
