package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lensworks/mediagate/internal/dispatch"
	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/registry"
)

type gatewayAPI struct {
	logger       *slog.Logger
	registry     *registry.Registry
	coord        *dispatch.Coordinator
	assembler    *dispatch.Assembler
	bodyMaxBytes int64
}

func newGatewayAPI(logger *slog.Logger, reg *registry.Registry, coord *dispatch.Coordinator, assembler *dispatch.Assembler) *gatewayAPI {
	return &gatewayAPI{
		logger:       logger,
		registry:     reg,
		coord:        coord,
		assembler:    assembler,
		bodyMaxBytes: 256 << 20, // 256 MiB; inline images arrive base64-encoded
	}
}

func (api *gatewayAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/operations", api.handleListOperations)
	mux.HandleFunc("POST /v1/operations/{operation}", api.handleTransform)
	mux.HandleFunc("POST /v1/operations/{operation}/batch", api.handleTransformBatch)
}

// transformRequest carries one image ref per role. A value is either a
// URL (http, https or s3 scheme) or base64 image bytes.
type transformRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type batchRequest struct {
	Requests []transformRequest `json:"requests"`
}

type jobResult struct {
	JobID     string    `json:"job_id"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Image     string    `json:"image,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Error     *jobError `json:"error,omitempty"`
}

type jobError struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (api *gatewayAPI) handleListOperations(w http.ResponseWriter, r *http.Request) {
	type operationInfo struct {
		Name       string   `json:"name"`
		InputRoles []string `json:"input_roles"`
		MediaType  string   `json:"media_type"`
	}

	names := api.registry.Names()
	out := make([]operationInfo, 0, len(names))
	for _, name := range names {
		op, err := api.registry.Resolve(name)
		if err != nil {
			continue
		}
		out = append(out, operationInfo{Name: op.Name, InputRoles: op.InputRoles, MediaType: op.MediaType})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (api *gatewayAPI) handleTransform(w http.ResponseWriter, r *http.Request) {
	operation := strings.TrimSpace(r.PathValue("operation"))
	if operation == "" {
		api.writeError(w, r, http.StatusBadRequest, "operation_required")
		return
	}

	var req transformRequest
	if err := decodeJSON(r, &req, api.bodyMaxBytes); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	domReq, err := buildRequest(operation, req)
	if err != nil {
		api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}

	out, err := api.assembler.Submit(r.Context(), domReq)
	if err != nil {
		api.writeSubmitError(w, r, err)
		return
	}
	api.writeJSON(w, statusForFailure(out.Failure), resultFromOutcome(out))
}

func (api *gatewayAPI) handleTransformBatch(w http.ResponseWriter, r *http.Request) {
	operation := strings.TrimSpace(r.PathValue("operation"))
	if operation == "" {
		api.writeError(w, r, http.StatusBadRequest, "operation_required")
		return
	}

	var req batchRequest
	if err := decodeJSON(r, &req, api.bodyMaxBytes); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Requests) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "requests_required")
		return
	}

	reqs := make([]domain.Request, len(req.Requests))
	for i, item := range req.Requests {
		domReq, err := buildRequest(operation, item)
		if err != nil {
			api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_request", fmt.Errorf("request[%d]: %w", i, err))
			return
		}
		reqs[i] = domReq
	}

	outs, err := api.coord.Dispatch(r.Context(), reqs)
	if err != nil {
		api.writeSubmitError(w, r, err)
		return
	}

	results := make([]jobResult, len(outs))
	for i, out := range outs {
		results[i] = resultFromOutcome(out)
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func buildRequest(operation string, in transformRequest) (domain.Request, error) {
	inputs := make(map[string]domain.ImageRef, len(in.Inputs))
	for role, raw := range in.Inputs {
		ref, err := domain.ParseImageRef(raw)
		if err != nil {
			return domain.Request{}, fmt.Errorf("input %q: %w", role, err)
		}
		inputs[role] = ref
	}
	return domain.Request{Operation: operation, Inputs: inputs}, nil
}

func resultFromOutcome(out domain.JobOutcome) jobResult {
	res := jobResult{
		JobID:     out.JobID,
		Operation: out.Operation,
		Status:    "succeeded",
		ElapsedMs: out.Elapsed.Milliseconds(),
	}
	if out.Failure != nil {
		res.Status = "failed"
		res.Error = &jobError{
			Kind:        string(out.Failure.Kind),
			Message:     out.Failure.Message,
			Diagnostics: out.Failure.Diagnostics,
		}
		return res
	}
	res.Image = base64.StdEncoding.EncodeToString(out.Output)
	res.MediaType = out.MediaType
	return res
}

// statusForFailure maps an outcome onto the response status. Input
// problems are the caller's fault, deadlines are 504, everything else
// is on us.
func statusForFailure(f *domain.Failure) int {
	if f == nil {
		return http.StatusOK
	}
	switch f.Kind {
	case domain.FailureDecode, domain.FailureFetch:
		return http.StatusUnprocessableEntity
	case domain.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (api *gatewayAPI) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownOperation):
		api.writeErrorDetail(w, r, http.StatusNotFound, "unknown_operation", err)
	case errors.Is(err, domain.ErrInvalidRequest):
		api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		api.writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
	default:
		api.logger.Error("dispatch failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dst any, maxBytes int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *gatewayAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *gatewayAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *gatewayAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"detail":     err.Error(),
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
