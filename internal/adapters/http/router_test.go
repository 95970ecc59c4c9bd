package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/city-osm-features/internal/config"
	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/observability/metrics"
)

type datasetsFake struct {
	datasets   []domain.Dataset
	summary    []domain.SummaryRow
	length     []domain.LengthRow
	err        error
	lastColumn string
	lastName   string
}

func (f *datasetsFake) List(_ context.Context, _, _ string) ([]domain.Dataset, error) {
	return f.datasets, f.err
}

func (f *datasetsFake) Summary(_ context.Context, name, column string) ([]domain.SummaryRow, error) {
	f.lastName, f.lastColumn = name, column
	return f.summary, f.err
}

func (f *datasetsFake) NetworkLength(_ context.Context, name string) ([]domain.LengthRow, error) {
	f.lastName = name
	return f.length, f.err
}

type classifierFake struct{}

func (classifierFake) ClassifyValues(taxonomy string, values []string) ([]string, error) {
	if taxonomy != "landuse" {
		return nil, domain.WrapError(domain.ErrNotFound, "lookup taxonomy", errors.New(taxonomy))
	}
	out := make([]string, len(values))
	for i, v := range values {
		if v == "farmland" {
			out[i] = "agriculture"
		} else {
			out[i] = "other"
		}
	}
	return out, nil
}

func (classifierFake) Names() []string { return []string{"landuse", "natural"} }

type enqueuerFake struct {
	err     error
	city    string
	vintage time.Time
}

func (f *enqueuerFake) Enqueue(_ context.Context, city string, vintage time.Time) (domain.CityJob, error) {
	f.city, f.vintage = city, vintage
	if f.err != nil {
		return domain.CityJob{}, f.err
	}
	job := domain.CityJob{RunID: "run-1", City: city, RequestedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	if !vintage.IsZero() {
		job.Vintage = vintage.Format(domain.VintageLayout)
	}
	return job, nil
}

type runsFake struct {
	runs []domain.CityRun
}

func (f runsFake) GetRun(_ context.Context, runID string) (*domain.CityRun, error) {
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get run", errors.New(runID))
}

func (f runsFake) ListRuns(_ context.Context, city string, limit int) ([]domain.CityRun, error) {
	var out []domain.CityRun
	for _, run := range f.runs {
		if strings.EqualFold(run.City, city) && len(out) < limit {
			out = append(out, run)
		}
	}
	return out, nil
}

func testConfig() config.Config {
	return config.Config{APIMaxInFlight: 8, APIOverloadWaitMS: 50}
}

func serve(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestOpenAPIDocumentLoads(t *testing.T) {
	if _, err := loadAPIRouter(); err != nil {
		t.Fatalf("embedded openapi document: %v", err)
	}
}

func TestHealthzSetsRequestID(t *testing.T) {
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, nil).Handler()
	res := serve(t, handler, http.MethodGet, "/healthz", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestListDatasetsRendersFileNames(t *testing.T) {
	vintage := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := &datasetsFake{datasets: []domain.Dataset{
		domain.NewDataset("Leeds", domain.KindLanduse, "", vintage),
		domain.NewDataset("Leeds", domain.KindNetwork, "driving", vintage),
	}}
	handler := NewRouter(testConfig(), fake, classifierFake{}, &enqueuerFake{}, nil).Handler()

	res := serve(t, handler, http.MethodGet, "/v1/datasets?area=Leeds", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		Datasets []datasetView `json:"datasets"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Datasets) != 2 || body.Datasets[0].Name != "leeds-landuse-2024-03-01.geojson" || body.Datasets[1].Kind != "net-driving" {
		t.Fatalf("unexpected datasets %+v", body.Datasets)
	}
}

func TestListDatasetsRejectsUnknownKind(t *testing.T) {
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, nil).Handler()
	res := serve(t, handler, http.MethodGet, "/v1/datasets?kind=roads", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSummaryDefaultsColumnAndMapsErrors(t *testing.T) {
	fake := &datasetsFake{summary: []domain.SummaryRow{{AOIName: "X", Category: "commerce", Count: 3, AOITotal: 4, CategoryPercent: 75}}}
	handler := NewRouter(testConfig(), fake, classifierFake{}, &enqueuerFake{}, nil).Handler()

	res := serve(t, handler, http.MethodGet, "/v1/datasets/leeds-landuse-2024-03-01.geojson/summary", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["column"] != "category" || fake.lastColumn != "" || fake.lastName != "leeds-landuse-2024-03-01.geojson" {
		t.Fatalf("unexpected body %v (column %q)", body, fake.lastColumn)
	}

	res = serve(t, handler, http.MethodGet, "/v1/datasets/leeds-landuse-2024-03-01.geojson/summary?column=colour", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for column outside enum, got %d", res.Code)
	}

	fake.err = domain.WrapError(domain.ErrNotFound, "load dataset", errors.New("missing"))
	res = serve(t, handler, http.MethodGet, "/v1/datasets/leeds-landuse-2024-03-01.geojson/summary", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestNetworkLengthMapsSchemaMismatchTo422(t *testing.T) {
	fake := &datasetsFake{err: domain.WrapError(domain.ErrSchemaMismatch, "summarize network length", errors.New("landuse"))}
	handler := NewRouter(testConfig(), fake, classifierFake{}, &enqueuerFake{}, nil).Handler()
	res := serve(t, handler, http.MethodGet, "/v1/datasets/leeds-landuse-2024-03-01.geojson/length", "")
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestClassifyValues(t *testing.T) {
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/classify", `{"taxonomy":"landuse","values":["farmland","quarry"]}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		Results []classifiedValue `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 2 || body.Results[0].Category != "agriculture" || body.Results[1].Category != "other" {
		t.Fatalf("unexpected results %+v", body.Results)
	}

	res = serve(t, handler, http.MethodPost, "/v1/classify", `{"taxonomy":"landuse","values":["farmland"],"extra":1}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}

	res = serve(t, handler, http.MethodPost, "/v1/classify", `{"taxonomy":"roads","values":["a"]}`)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown taxonomy, got %d", res.Code)
	}
}

func TestEnqueueCityRun(t *testing.T) {
	enqueuer := &enqueuerFake{}
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, enqueuer, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/cities/York/runs", `{"vintage":"2024-03-01"}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if enqueuer.city != "York" || !enqueuer.vintage.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected enqueue call %q %v", enqueuer.city, enqueuer.vintage)
	}

	res = serve(t, handler, http.MethodPost, "/v1/cities/York/runs", "")
	if res.Code != http.StatusAccepted || !enqueuer.vintage.IsZero() {
		t.Fatalf("expected 202 with zero vintage for empty body, got %d %v", res.Code, enqueuer.vintage)
	}

	res = serve(t, handler, http.MethodPost, "/v1/cities/York/runs", `{"vintage":"March"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed vintage, got %d", res.Code)
	}
}

func TestEnqueueCityRunMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrNotFound, "lookup city", errors.New("Atlantis")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTemporary, "publish city job", errors.New("nats down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{err: tc.err}, nil).Handler()
		res := serve(t, handler, http.MethodPost, "/v1/cities/Atlantis/runs", "")
		if res.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestRunEndpoints(t *testing.T) {
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, nil).Handler()
	res := serve(t, handler, http.MethodGet, "/v1/runs/run-1", "")
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without run store, got %d", res.Code)
	}

	runs := runsFake{runs: []domain.CityRun{
		{RunID: "run-1", City: "Leeds", Status: domain.RunStatusSucceeded},
		{RunID: "run-2", City: "York", Status: domain.RunStatusDropped},
	}}
	handler = NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, runs).Handler()

	res = serve(t, handler, http.MethodGet, "/v1/runs/run-2", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["status"] != "dropped" {
		t.Fatalf("unexpected run %v", body)
	}

	res = serve(t, handler, http.MethodGet, "/v1/runs/run-9", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}

	res = serve(t, handler, http.MethodGet, "/v1/cities/leeds/runs?limit=5", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if runs, _ := decodeBody(t, res)["runs"].([]any); len(runs) != 1 {
		t.Fatalf("expected one Leeds run, got %v", runs)
	}

	res = serve(t, handler, http.MethodGet, "/v1/cities/leeds/runs?limit=500", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit above maximum, got %d", res.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(metricsService)
	handler := NewRouter(testConfig(), &datasetsFake{}, classifierFake{}, &enqueuerFake{}, nil).WithMetrics(m).Handler()

	serve(t, handler, http.MethodPost, "/v1/cities/York/runs", "")
	res := serve(t, handler, http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `cof_queue_enqueued_runs_total{result="accepted",service="api"} 1`) {
		t.Fatalf("expected enqueue counter in:\n%s", res.Body.String())
	}
}
