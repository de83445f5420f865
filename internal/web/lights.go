package web

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/light-controller/internal/device"
)

type lightResponse struct {
	Success bool          `json:"success"`
	Light   device.Device `json:"light"`
	Message string        `json:"message,omitempty"`
}

type lightsResponse struct {
	Success bool            `json:"success"`
	Lights  []device.Device `json:"lights"`
	Message string          `json:"message,omitempty"`
}

func lightID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: light %q", device.ErrNotFound, raw)
	}
	return id, nil
}

func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	lights, err := s.lights.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightsResponse{Success: true, Lights: lights})
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	id, err := lightID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	d, err := s.lights.State(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightResponse{Success: true, Light: d})
}

func (s *Server) handleToggleLight(w http.ResponseWriter, r *http.Request) {
	id, err := lightID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := s.lights.Toggle(id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.respondLight(w, id, "turned %s")
}

type setRequest struct {
	State *bool `json:"state"`
}

func (s *Server) handleSetLight(w http.ResponseWriter, r *http.Request) {
	id, err := lightID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req setRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, "state parameter required")
		return
	}
	d, err := s.lights.SetDiscrete(id, *req.State)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightResponse{
		Success: true,
		Light:   d,
		Message: fmt.Sprintf("Light %s turned %s", d.Name, d.StateString()),
	})
}

type brightnessRequest struct {
	Brightness *float64 `json:"brightness"`
	FadeTime   *float64 `json:"fade_time,omitempty"`
	Steps      *int     `json:"steps,omitempty"`
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	id, err := lightID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req brightnessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Brightness == nil {
		writeError(w, http.StatusBadRequest, "brightness parameter required")
		return
	}
	d, err := s.lights.SetLevel(id, *req.Brightness)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightResponse{
		Success: true,
		Light:   d,
		Message: fmt.Sprintf("Light %s brightness set to %s%%", d.Name, formatPercent(d.Level)),
	})
}

// handleFade starts a fade and returns immediately; the ramp continues in the background.
func (s *Server) handleFade(w http.ResponseWriter, r *http.Request) {
	id, err := lightID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req brightnessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Brightness == nil {
		writeError(w, http.StatusBadRequest, "brightness parameter required")
		return
	}

	// A missing or zero fade_time means the default.
	seconds := device.DefaultFadeDuration.Seconds()
	if req.FadeTime != nil && *req.FadeTime != 0 {
		seconds = *req.FadeTime
	}
	if math.IsNaN(seconds) || seconds <= 0 || seconds > 3600 {
		writeError(w, http.StatusBadRequest, "fade_time must be positive and at most 3600 seconds")
		return
	}
	steps := 0
	if req.Steps != nil {
		steps = *req.Steps
	}

	duration := time.Duration(seconds * float64(time.Second))
	if _, err := s.lights.Fade(id, *req.Brightness, duration, steps); err != nil {
		writeDomainError(w, err)
		return
	}

	d, err := s.lights.State(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightResponse{
		Success: true,
		Light:   d,
		Message: fmt.Sprintf("Fading light %s to %s%% over %gs", d.Name, formatPercent(*req.Brightness), seconds),
	})
}

func (s *Server) handleAllOn(w http.ResponseWriter, _ *http.Request) {
	s.switchAll(w, true)
}

func (s *Server) handleAllOff(w http.ResponseWriter, _ *http.Request) {
	s.switchAll(w, false)
}

// switchAll reports failures as 500 but still returns the lights it could read.
func (s *Server) switchAll(w http.ResponseWriter, on bool) {
	var err error
	word := "OFF"
	if on {
		err = s.lights.AllOn()
		word = "ON"
	} else {
		err = s.lights.AllOff()
	}
	lights, listErr := s.lights.List()

	if err != nil {
		writeJSON(w, errorStatus(err), struct {
			errorResponse
			Lights []device.Device `json:"lights"`
		}{
			errorResponse: errorResponse{Success: false, Error: err.Error()},
			Lights:        lights,
		})
		return
	}
	if listErr != nil {
		writeDomainError(w, listErr)
		return
	}
	writeJSON(w, http.StatusOK, lightsResponse{
		Success: true,
		Lights:  lights,
		Message: "All lights turned " + word,
	})
}

// respondLight re-reads a light after a write and renders it with a message
// whose verb takes the new ON/OFF state.
func (s *Server) respondLight(w http.ResponseWriter, id int, verb string) {
	d, err := s.lights.State(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lightResponse{
		Success: true,
		Light:   d,
		Message: fmt.Sprintf("Light %s "+verb, d.Name, d.StateString()),
	})
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
