package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/light-controller/internal/schedule"
)

type timerResponse struct {
	Success bool           `json:"success"`
	Timer   schedule.Timer `json:"timer"`
	Message string         `json:"message,omitempty"`
}

type timersResponse struct {
	Success bool             `json:"success"`
	Timers  []schedule.Timer `json:"timers"`
}

// createTimerRequest mirrors schedule.CreateRequest with presence tracking so
// missing fields can be named in the error.
type createTimerRequest struct {
	LightID    *flexInt `json:"light_id"`
	Action     *string  `json:"action"`
	Time       *string  `json:"time"`
	Brightness *float64 `json:"brightness"`
	Repeat     string   `json:"repeat"`
}

func (req createTimerRequest) missing() string {
	switch {
	case req.LightID == nil:
		return "light_id"
	case req.Action == nil || *req.Action == "":
		return "action"
	case req.Time == nil || *req.Time == "":
		return "time"
	}
	return ""
}

func (s *Server) handleListTimers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, timersResponse{Success: true, Timers: s.timers.List()})
}

func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req createTimerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if field := req.missing(); field != "" {
		writeError(w, http.StatusBadRequest, "Missing required field: "+field)
		return
	}

	t, err := s.timers.Create(schedule.CreateRequest{
		DeviceID: int(*req.LightID),
		Action:   *req.Action,
		Time:     *req.Time,
		Level:    req.Brightness,
		Repeat:   req.Repeat,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, timerResponse{
		Success: true,
		Timer:   t,
		Message: fmt.Sprintf("Timer set for %s to %s at %s", t.DeviceName, t.Action, t.Next.Format("15:04")),
	})
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	t, err := s.timers.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timerResponse{Success: true, Timer: t})
}

func (s *Server) handleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	if err := s.timers.Delete(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Success: true, Message: "Timer deleted successfully"})
}

func (s *Server) handleToggleTimer(w http.ResponseWriter, r *http.Request) {
	t, err := s.timers.Toggle(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	msg := "Timer deactivated"
	if t.Active {
		msg = "Timer activated"
	}
	writeJSON(w, http.StatusOK, timerResponse{Success: true, Timer: t, Message: msg})
}
