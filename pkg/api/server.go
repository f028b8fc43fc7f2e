// Package api exposes the pipeline over HTTP: the extraction endpoint,
// operator stats, and the middleware stack in front of them.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/garagehq/docvision/pkg/cost"
	"github.com/garagehq/docvision/pkg/doctype"
	"github.com/garagehq/docvision/pkg/extract"
	"github.com/garagehq/docvision/pkg/modelsel"
	"github.com/garagehq/docvision/pkg/pipeline"
	"github.com/garagehq/docvision/pkg/vision"
)

// maxImageBytes caps uploads; large binary handling belongs to an object
// store, not this service.
const maxImageBytes = 10 << 20

// API routes HTTP traffic into the pipeline.
type API struct {
	pipe   *pipeline.Pipeline
	totals *cost.SessionTotals
	log    *slog.Logger
}

func New(pipe *pipeline.Pipeline, totals *cost.SessionTotals, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{pipe: pipe, totals: totals, log: log}
}

// RegisterRoutes registers the public endpoints.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/extract", a.handleExtract)
}

// extractJSONBody is the JSON alternative to a multipart upload.
type extractJSONBody struct {
	ImageB64     string            `json:"image_b64"`
	MIMEType     string            `json:"mime_type,omitempty"`
	DocumentType string            `json:"document_type"`
	CostBudget   string            `json:"cost_budget,omitempty"`
	Hints        map[string]string `json:"hints,omitempty"`
}

func (a *API) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	req, err := a.decodeRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	outcome, err := a.pipe.Process(r.Context(), *req)
	if err != nil {
		a.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (a *API) decodeRequest(r *http.Request) (*pipeline.Request, error) {
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, errors.New("invalid multipart form")
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("missing image file field")
		}
		defer file.Close()
		img, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil {
			return nil, errors.New("could not read image")
		}
		if len(img) > maxImageBytes {
			return nil, errors.New("image exceeds 10MB limit")
		}
		return &pipeline.Request{
			Image:        img,
			MIMEType:     header.Header.Get("Content-Type"),
			DocumentType: doctype.Parse(r.FormValue("document_type")),
			Budget:       modelsel.ParseBudget(r.FormValue("cost_budget")),
		}, nil
	}

	var body extractJSONBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes*2)).Decode(&body); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	img, err := base64.StdEncoding.DecodeString(body.ImageB64)
	if err != nil || len(img) == 0 {
		return nil, errors.New("image_b64 missing or not valid base64")
	}
	if len(img) > maxImageBytes {
		return nil, errors.New("image exceeds 10MB limit")
	}
	return &pipeline.Request{
		Image:        img,
		MIMEType:     body.MIMEType,
		DocumentType: doctype.Parse(body.DocumentType),
		Budget:       modelsel.ParseBudget(body.CostBudget),
		Hints:        body.Hints,
	}, nil
}

// respondPipelineError maps the three terminal error kinds onto status
// codes. Retry-exhausted is the only retryable one.
func (a *API) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vision.ErrRejectedInput):
		respondError(w, http.StatusUnprocessableEntity, "rejected_input", err.Error())
	case errors.Is(err, vision.ErrRetryExhausted):
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "retry_exhausted", err.Error())
	case errors.Is(err, extract.ErrUnparseable):
		respondError(w, http.StatusBadGateway, "unparseable_response", err.Error())
	default:
		a.log.Error("api.extract.internal_error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func respondError(w http.ResponseWriter, status int, kind, msg string) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = msg
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
