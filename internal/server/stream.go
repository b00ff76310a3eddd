package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

const streamPollInterval = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (configure CORS for production)
	},
}

// streamFrame is the JSON protocol for execution streaming. Output frames
// carry deltas since the previous frame; the result frame is terminal.
type streamFrame struct {
	Type   string                `json:"type"` // "output" | "result" | "error"
	State  domain.ExecutionState `json:"state,omitempty"`
	Stdout string                `json:"stdout,omitempty"`
	Stderr string                `json:"stderr,omitempty"`
	Result *domain.SandboxResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// handleExecutionStream upgrades to a WebSocket and streams execution
// output until the execution reaches a terminal state or the client
// disconnects.
func (s *Server) handleExecutionStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Reject unknown executions before committing to the upgrade.
	if _, err := s.guard.Status(id); err != nil {
		writeGuardError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// The read loop only detects the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var sentStdout, sentStderr int
	send := func(frame streamFrame) bool {
		data, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("websocket write failed", "err", err)
			return false
		}
		return true
	}

	// Output grows append-only, so the delta is everything past what the
	// client has already seen.
	poll := func() (done bool) {
		st, err := s.guard.Status(id)
		if err != nil {
			send(streamFrame{Type: "error", Error: err.Error()})
			return true
		}

		stdout := st.Stdout[sentStdout:]
		stderr := st.Stderr[sentStderr:]
		if stdout != "" || stderr != "" {
			if !send(streamFrame{Type: "output", State: st.State, Stdout: stdout, Stderr: stderr}) {
				return true
			}
			sentStdout += len(stdout)
			sentStderr += len(stderr)
		}

		if st.State.Terminal() {
			frame := streamFrame{Type: "result", State: st.State, Result: st.Result}
			if st.Err != nil {
				frame.Error = st.Err.Error()
			}
			send(frame)
			return true
		}
		return false
	}

	if poll() {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if poll() {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
