package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"firewatch/internal/actuator"
	"firewatch/internal/csvlog"
	"firewatch/internal/errors"
	"firewatch/internal/history"
	"firewatch/internal/metrics"
	"firewatch/internal/ml"
	"firewatch/internal/models"
	"firewatch/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Predict(ctx context.Context, raw models.RawInput) (services.IngestResult, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(services.IngestResult), args.Error(1)
}

func (m *MockIngestService) Save(ctx context.Context, raw models.RawInput, status string) (services.IngestResult, error) {
	args := m.Called(ctx, raw, status)
	return args.Get(0).(services.IngestResult), args.Error(1)
}

func (m *MockIngestService) Snapshot() (models.Reading, bool, []models.Reading) {
	args := m.Called()
	var all []models.Reading
	if args.Get(2) != nil {
		all = args.Get(2).([]models.Reading)
	}
	return args.Get(0).(models.Reading), args.Bool(1), all
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var testNow = time.Date(2024, 7, 14, 9, 15, 30, 0, time.UTC)

func newTestServer(t *testing.T, ingest IngestService, pinger Pinger, logPath string) (*HTTPServer, *actuator.Buzzer, *metrics.Metrics) {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())
	buzzer := actuator.New()
	config := DefaultServerConfig()
	config.LogPath = logPath
	return NewHTTPServer(config, ingest, buzzer, pinger, m, zerolog.Nop()), buzzer, m
}

// newPipeline wires a real ingest service with a CSV sink
func newPipeline(t *testing.T) (*services.IngestService, string) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "fire_data.csv")
	sink, err := csvlog.Open(logPath)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	svc := services.NewIngestService(
		ml.DefaultRuleClassifier(),
		history.New(history.DefaultCapacity),
		[]services.Sink{sink},
		nil,
		zerolog.Nop(),
		services.IngestServiceConfig{Clock: func() time.Time { return testNow }},
	)
	return svc, logPath
}

func serve(s *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHome(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Backend Running OK", decode(t, w)["message"])
}

func TestPredict(t *testing.T) {
	ingest := new(MockIngestService)
	server, _, _ := newTestServer(t, ingest, nil, "")

	reading := models.Reading{
		Timestamp: models.NewTimestamp(testNow),
		Temp:      31.5, Hum: 44, Gas: 120, Flame: 0,
		Status: "AMAN",
	}
	ingest.On("Predict", mock.Anything, mock.MatchedBy(func(raw models.RawInput) bool {
		return *raw.Temp == "31.5" && *raw.Hum == "44" && *raw.Gas == "120" && *raw.Flame == "0"
	})).Return(services.IngestResult{Reading: reading}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"temp":31.5,"hum":"44","gas":120,"flame":0}`))
	w := serve(server, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "AMAN", body["status"])
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "2024-07-14 09:15:30", entry["timestamp"])
	assert.Equal(t, 31.5, entry["temp"])
	assert.Equal(t, "AMAN", entry["status"])

	ingest.AssertExpectations(t)
}

func TestPredictMalformedBody(t *testing.T) {
	ingest := new(MockIngestService)
	server, _, _ := newTestServer(t, ingest, nil, "")

	w := serve(server, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"temp":`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid input", decode(t, w)["error"])
	ingest.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredictInvalidInputHasNoSideEffects(t *testing.T) {
	svc, logPath := newPipeline(t)
	server, _, _ := newTestServer(t, svc, nil, logPath)

	bodies := []string{
		`{}`,
		`{"temp":20,"hum":50,"gas":100}`,
		`{"temp":"hot","hum":50,"gas":100,"flame":0}`,
		`{"temp":null,"hum":50,"gas":100,"flame":0}`,
		`{"temp":[1],"hum":50,"gas":100,"flame":0}`,
	}
	for _, b := range bodies {
		w := serve(server, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(b)))
		assert.Equal(t, http.StatusBadRequest, w.Code, b)
		assert.Equal(t, "Invalid input", decode(t, w)["error"], b)
	}

	_, ok := svc.Latest()
	assert.False(t, ok)
	rows, _, err := csvlog.ReadAll(logPath)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPredictEndToEnd(t *testing.T) {
	svc, logPath := newPipeline(t)
	server, _, _ := newTestServer(t, svc, nil, logPath)

	w := serve(server, httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"temp":"62","hum":"18","gas":"480","flame":"1"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BAHAYA", decode(t, w)["status"])

	w = serve(server, httptest.NewRequest(http.MethodGet, "/latest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "BAHAYA", body["last"].(map[string]any)["status"])
	assert.Len(t, body["history"], 1)

	w = serve(server, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.Reading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 480.0, rows[0].Gas)
}

func TestPredictInternalError(t *testing.T) {
	ingest := new(MockIngestService)
	ingest.On("Predict", mock.Anything, mock.Anything).
		Return(services.IngestResult{}, errors.New().Wrap(errors.ErrClassification, stderrors.New("bad tree")))
	server, _, _ := newTestServer(t, ingest, nil, "")

	w := serve(server, httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"temp":1,"hum":2,"gas":3,"flame":0}`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])
}

func TestSaveData(t *testing.T) {
	ingest := new(MockIngestService)
	server, _, _ := newTestServer(t, ingest, nil, "")

	ingest.On("Save", mock.Anything, mock.MatchedBy(func(raw models.RawInput) bool {
		return *raw.Temp == "48" && *raw.Hum == "22" && *raw.Gas == "733" && *raw.Flame == "1"
	}), "fire").Return(services.IngestResult{}, nil)

	w := serve(server, postForm("/api/save-data", url.Values{
		"temperature": {"48"},
		"humidity":    {"22"},
		"gas":         {"733"},
		"flame":       {"1"},
		"status":      {"fire"},
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["saved"])
	ingest.AssertExpectations(t)
}

func TestSaveDataRoundTrip(t *testing.T) {
	svc, logPath := newPipeline(t)
	server, _, _ := newTestServer(t, svc, nil, logPath)

	w := serve(server, postForm("/api/save-data", url.Values{
		"temperature": {"48.5"},
		"humidity":    {"22"},
		"gas":         {"733"},
		"flame":       {"1"},
		"status":      {"FIRE"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	last, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, "FIRE", last.Status)
	assert.Equal(t, 48.5, last.Temp)

	rows, _, err := csvlog.ReadAll(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.Reading{last}, rows)
}

func TestSaveDataMissingField(t *testing.T) {
	svc, _ := newPipeline(t)
	server, _, _ := newTestServer(t, svc, nil, "")

	w := serve(server, postForm("/api/save-data", url.Values{
		"temperature": {"48"},
		"gas":         {"733"},
		"flame":       {"1"},
		"status":      {"FIRE"},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Invalid input", body["error"])
	assert.Equal(t, "missing field hum", body["detail"])
	assert.Empty(t, svc.History())
}

func TestLatestEmpty(t *testing.T) {
	ingest := new(MockIngestService)
	ingest.On("Snapshot").Return(models.Reading{}, false, nil)
	server, _, _ := newTestServer(t, ingest, nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/latest", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last":{},"history":[]}`, w.Body.String())
}

func TestBuzzer(t *testing.T) {
	server, buzzer, m := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/device/commands", nil))
	assert.JSONEq(t, `{"buzzer":"OFF"}`, w.Body.String())

	w = serve(server, httptest.NewRequest(http.MethodPost, "/buzzer/warn", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"buzzer":{"mode":"WARN"}}`, w.Body.String())
	assert.Equal(t, models.BuzzerWarn, buzzer.Get())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuzzerMode.WithLabelValues("WARN")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BuzzerMode.WithLabelValues("OFF")))

	w = serve(server, httptest.NewRequest(http.MethodGet, "/device/commands", nil))
	assert.JSONEq(t, `{"buzzer":"WARN"}`, w.Body.String())
}

func TestBuzzerInvalidMode(t *testing.T) {
	server, buzzer, _ := newTestServer(t, new(MockIngestService), nil, "")

	_, err := buzzer.Set("DANGER")
	require.NoError(t, err)

	w := serve(server, httptest.NewRequest(http.MethodPost, "/buzzer/LOUD", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid mode", decode(t, w)["error"])
	assert.Equal(t, models.BuzzerDanger, buzzer.Get())
}

func TestBuzzerRejectsGet(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/buzzer/WARN", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("Ping", mock.Anything).Return(nil).Once()
	pinger.On("Ping", mock.Anything).Return(errors.New().New(errors.ErrUnavailable)).Once()
	server, _, _ := newTestServer(t, new(MockIngestService), pinger, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(server, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(server, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	pinger.AssertExpectations(t)
}

func TestReadinessWithoutStore(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "sensor-42")
	w = serve(server, req)
	assert.Equal(t, "sensor-42", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	req := httptest.NewRequest(http.MethodGet, "/device/commands", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	w := serve(server, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	server, _, m := newTestServer(t, new(MockIngestService), nil, "")

	serve(server, httptest.NewRequest(http.MethodPost, "/buzzer/DANGER", nil))
	serve(server, httptest.NewRequest(http.MethodPost, "/buzzer/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/buzzer/{mode}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/buzzer/{mode}", "400")))

	w := serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestLogsRouteDisabledWithoutPath(t *testing.T) {
	server, _, _ := newTestServer(t, new(MockIngestService), nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/logs", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLatestUsesSingleSnapshot(t *testing.T) {
	last := models.Reading{Timestamp: models.NewTimestamp(testNow), Temp: 2, Status: "WASPADA"}
	ingest := new(MockIngestService)
	ingest.On("Snapshot").Return(last, true, []models.Reading{{Timestamp: models.NewTimestamp(testNow), Temp: 1, Status: "AMAN"}, last}).Once()
	server, _, _ := newTestServer(t, ingest, nil, "")

	w := serve(server, httptest.NewRequest(http.MethodGet, "/latest", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	hist := body["history"].([]any)
	require.Len(t, hist, 2)
	assert.Equal(t, hist[1], body["last"])
	ingest.AssertExpectations(t)
}

func TestLogsSkipsMalformedRows(t *testing.T) {
	svc, logPath := newPipeline(t)
	server, _, _ := newTestServer(t, svc, nil, logPath)

	w := serve(server, httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"temp":20,"hum":50,"gas":100,"flame":0}`)))
	require.Equal(t, http.StatusOK, w.Code)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2026-10-1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w = serve(server, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get(SkippedRowsHeader))

	var rows []models.Reading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}
