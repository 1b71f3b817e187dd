package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"firewatch/internal/csvlog"
	"firewatch/internal/errors"
	"firewatch/internal/models"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// SkippedRowsHeader reports how many unreadable log rows /api/logs left out
const SkippedRowsHeader = "X-Skipped-Rows"

// predictResponse is returned by /api/predict
type predictResponse struct {
	Status string         `json:"status"`
	Entry  models.Reading `json:"entry"`
}

type latestResponse struct {
	Last    any              `json:"last"`
	History []models.Reading `json:"history"`
}

type buzzerState struct {
	Mode models.BuzzerMode `json:"mode"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *HTTPServer) home(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Backend Running OK"})
}

func (s *HTTPServer) predict(w http.ResponseWriter, r *http.Request) {
	var payload models.PredictPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		s.writeError(w, r, errors.New().Wrap(errors.ErrInvalidInput, err))
		return
	}

	res, err := s.ingest.Predict(r.Context(), payload.Raw())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, predictResponse{Status: res.Reading.Status, Entry: res.Reading})
}

func (s *HTTPServer) saveData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, errors.New().Wrap(errors.ErrInvalidInput, err))
		return
	}

	raw := models.RawInput{
		Temp:  formValue(r, "temperature"),
		Hum:   formValue(r, "humidity"),
		Gas:   formValue(r, "gas"),
		Flame: formValue(r, "flame"),
	}

	if _, err := s.ingest.Save(r.Context(), raw, r.PostForm.Get("status")); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// formValue returns nil when key is absent from the body
func formValue(r *http.Request, key string) *string {
	values, ok := r.PostForm[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func (s *HTTPServer) latest(w http.ResponseWriter, r *http.Request) {
	last, ok, all := s.ingest.Snapshot()

	resp := latestResponse{
		Last:    struct{}{},
		History: all,
	}
	if ok {
		resp.Last = last
	}
	if resp.History == nil {
		resp.History = []models.Reading{}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) setBuzzer(w http.ResponseWriter, r *http.Request) {
	mode, err := s.buzzer.Set(mux.Vars(r)["mode"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.SetBuzzerMode(string(mode), buzzerModeNames())
	s.logger.Info().Str("mode", string(mode)).Msg("Buzzer mode set")

	s.writeJSON(w, http.StatusOK, map[string]buzzerState{"buzzer": {Mode: mode}})
}

func (s *HTTPServer) deviceCommands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]models.BuzzerMode{"buzzer": s.buzzer.Get()})
}

func (s *HTTPServer) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("Readiness check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) logs(w http.ResponseWriter, r *http.Request) {
	rows, skipped, err := csvlog.ReadAll(s.logPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Str("path", s.logPath).Msg("Skipped malformed log rows")
	}
	w.Header().Set(SkippedRowsHeader, strconv.Itoa(skipped))
	if rows == nil {
		rows = []models.Reading{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps coded errors to a status and a stable public message
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "Internal server error"}

	switch {
	case errors.HasCode(err, errors.ErrInvalidInput):
		status = http.StatusBadRequest
		resp = errorResponse{Error: "Invalid input", Detail: detail(err)}
	case errors.HasCode(err, errors.ErrInvalidMode):
		status = http.StatusBadRequest
		resp = errorResponse{Error: "Invalid mode"}
	default:
		s.logger.Error().
			Str("request_id", RequestID(r.Context())).
			Str("error_code", string(errors.CodeOf(err))).
			Err(err).
			Msg("Request failed")
	}

	s.writeJSON(w, status, resp)
}

func detail(err error) string {
	var coded errors.Error
	if errors.As(err, &coded) {
		if data, ok := coded.GetData().(string); ok {
			return data
		}
	}
	return ""
}

func buzzerModeNames() []string {
	names := make([]string, len(models.BuzzerModes))
	for i, m := range models.BuzzerModes {
		names[i] = string(m)
	}
	return names
}
