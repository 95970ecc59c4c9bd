package httpadapter

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/kirillkom/city-osm-features/internal/config"
	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
	"github.com/kirillkom/city-osm-features/internal/observability/metrics"
)

//go:embed openapi.yaml
var openAPIDocument []byte

const (
	metricsService  = "api"
	maxBodyBytes    = 1 << 20
	defaultRunLimit = 20
)

type Router struct {
	datasets   ports.DatasetReader
	classifier ports.TagClassifierService
	enqueuer   ports.CityJobPublisher
	runs       ports.RunReader
	metrics    *metrics.HTTPServerMetrics

	rateLimitRPS   int
	rateLimitBurst int
	maxInFlight    int
	overloadWait   time.Duration
}

// NewRouter wires the API handlers. runs may be nil when no run store is configured.
func NewRouter(
	cfg config.Config,
	datasets ports.DatasetReader,
	classifier ports.TagClassifierService,
	enqueuer ports.CityJobPublisher,
	runs ports.RunReader,
) *Router {
	return &Router{
		datasets:       datasets,
		classifier:     classifier,
		enqueuer:       enqueuer,
		runs:           runs,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		overloadWait:   time.Duration(cfg.APIOverloadWaitMS) * time.Millisecond,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.HandleFunc("GET /v1/datasets", rt.listDatasets)
	mux.HandleFunc("GET /v1/datasets/{name}/summary", rt.summarizeDataset)
	mux.HandleFunc("GET /v1/datasets/{name}/length", rt.networkLength)
	mux.HandleFunc("GET /v1/taxonomies", rt.listTaxonomies)
	mux.HandleFunc("POST /v1/classify", rt.classifyValues)
	mux.HandleFunc("POST /v1/cities/{name}/runs", rt.enqueueCityRun)
	mux.HandleFunc("GET /v1/cities/{name}/runs", rt.listCityRuns)
	mux.HandleFunc("GET /v1/runs/{run_id}", rt.getRun)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = requestValidationMiddleware(handler, mustLoadAPIRouter())
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.overloadWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.onRateLimited)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func loadAPIRouter() (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return legacy.NewRouter(doc)
}

func mustLoadAPIRouter() routers.Router {
	router, err := loadAPIRouter()
	if err != nil {
		panic(err)
	}
	return router
}

func (rt *Router) onRateLimited() {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(metricsService)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

type datasetView struct {
	Name    string `json:"name"`
	Area    string `json:"area"`
	Kind    string `json:"kind"`
	Vintage string `json:"vintage"`
}

func (rt *Router) listDatasets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	datasets, err := rt.datasets.List(r.Context(), strings.TrimSpace(query.Get("area")), strings.TrimSpace(query.Get("kind")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]datasetView, 0, len(datasets))
	for _, ds := range datasets {
		views = append(views, datasetView{
			Name:    ds.FileName(),
			Area:    ds.AreaSlug,
			Kind:    ds.Kind,
			Vintage: ds.Vintage.Format(domain.VintageLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": views})
}

func (rt *Router) summarizeDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	column := strings.TrimSpace(r.URL.Query().Get("column"))
	rows, err := rt.datasets.Summary(r.Context(), name, column)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if column == "" {
		column = "category"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": name,
		"column":  column,
		"rows":    rows,
	})
}

func (rt *Router) networkLength(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rows, err := rt.datasets.NetworkLength(r.Context(), name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": name,
		"rows":    rows,
	})
}

func (rt *Router) listTaxonomies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"taxonomies": rt.classifier.Names()})
}

type classifiedValue struct {
	Value    string `json:"value"`
	Category string `json:"category"`
}

func (rt *Router) classifyValues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Taxonomy string   `json:"taxonomy"`
		Values   []string `json:"values"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	categories, err := rt.classifier.ClassifyValues(req.Taxonomy, req.Values)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	results := make([]classifiedValue, len(req.Values))
	for i, value := range req.Values {
		results[i] = classifiedValue{Value: value, Category: categories[i]}
	}
	if rt.metrics != nil {
		rt.metrics.RecordClassified(metricsService, req.Taxonomy, len(results))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"taxonomy": req.Taxonomy,
		"results":  results,
	})
}

func (rt *Router) enqueueCityRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vintage string `json:"vintage"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		rt.recordEnqueue("rejected")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var vintage time.Time
	if req.Vintage != "" {
		parsed, err := time.Parse(domain.VintageLayout, req.Vintage)
		if err != nil {
			rt.recordEnqueue("rejected")
			writeError(w, http.StatusBadRequest, "vintage must be YYYY-MM-DD")
			return
		}
		vintage = parsed
	}

	job, err := rt.enqueuer.Enqueue(r.Context(), r.PathValue("name"), vintage)
	if err != nil {
		if mapErrorToHTTPStatus(err) < http.StatusInternalServerError {
			rt.recordEnqueue("rejected")
		} else {
			rt.recordEnqueue("failed")
		}
		writeDomainError(w, r, err)
		return
	}
	rt.recordEnqueue("accepted")
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) recordEnqueue(result string) {
	if rt.metrics != nil {
		rt.metrics.RecordEnqueue(metricsService, result)
	}
}

func (rt *Router) listCityRuns(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := rt.runs.ListRuns(r.Context(), r.PathValue("name"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.CityRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}
	run, err := rt.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
