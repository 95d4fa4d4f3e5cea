// Package api defines the REST API handlers for the script generator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/K-Arthur/script-generator/export"
	"github.com/K-Arthur/script-generator/ingest"
	"github.com/K-Arthur/script-generator/task"
	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/validation"
)

// DefaultMaxUploadBytes caps multipart uploads when Handlers.MaxUploadBytes
// is zero.
const DefaultMaxUploadBytes = 10 << 20

// TaskService is the interface the API uses to submit and observe tasks.
// Implemented by *orchestrator.Orchestrator.
type TaskService interface {
	Submit(ctx context.Context, req task.Request) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	Cancel(id string) bool
}

// Checker validates scripts synchronously. Implemented by
// *validation.Validator.
type Checker interface {
	Check(script, templateName string) (*validation.Report, error)
}

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks          TaskService
	Checker        Checker
	Templates      *templates.Registry
	Uploads        *ingest.Decoder
	Logger         *slog.Logger
	Version        string
	MaxUploadBytes int64
	StartAt        time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate-script", h.generateScript)
	mux.HandleFunc("GET /script-status/{task_id}", h.scriptStatus)
	mux.HandleFunc("GET /templates", h.listTemplates)
	mux.HandleFunc("POST /validate-script", h.validateScript)
	mux.HandleFunc("POST /export-script", h.exportScript)
	mux.HandleFunc("POST /upload-file", h.uploadFile)

	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("POST /tasks/{task_id}/cancel", h.cancelTask)

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// --- Script generation ---

type generateRequest struct {
	Content            string `json:"content"`
	TemplateName       string `json:"template_name,omitempty"`
	HighlightedConcept string `json:"highlighted_concept,omitempty"`
	PreviousTopic      string `json:"previous_topic,omitempty"`
}

type generateResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

func (h *Handlers) generateScript(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	t, err := h.Tasks.Submit(r.Context(), task.Request{
		Content:            req.Content,
		TemplateName:       req.TemplateName,
		HighlightedConcept: req.HighlightedConcept,
		PreviousTopic:      req.PreviousTopic,
	})
	if err != nil {
		var inputErr *validation.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusUnprocessableEntity, inputErr.Error())
			return
		}
		h.logger().Error("submit task failed", slog.Any("err", err))
		writeError(w, http.StatusServiceUnavailable, "Error generating script: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{TaskID: t.ID, Status: t.Status})
}

type statusResponse struct {
	TaskID     string             `json:"task_id"`
	Status     task.Status        `json:"status"`
	Script     string             `json:"script,omitempty"`
	Validation *validation.Report `json:"validation,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (h *Handlers) scriptStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), r.PathValue("task_id"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:     t.ID,
		Status:     t.Status,
		Script:     t.Script,
		Validation: t.Validation,
		Error:      t.Error,
	})
}

// --- Templates ---

func (h *Handlers) listTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Templates.All())
}

// --- Validation ---

type validateRequest struct {
	Script       string `json:"script"`
	TemplateName string `json:"template_name,omitempty"`
}

func (h *Handlers) validateScript(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Error validating script: invalid request body: "+err.Error())
		return
	}
	report, err := h.Checker.Check(req.Script, req.TemplateName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error validating script: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Export ---

type exportRequest struct {
	Script string `json:"script"`
	Format string `json:"format"`
}

func (h *Handlers) exportScript(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Error exporting script: invalid request body: "+err.Error())
		return
	}
	doc, err := export.Render(req.Script, req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error exporting script: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", doc.ContentDisposition())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// --- Upload ---

type uploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (h *Handlers) uploadFile(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Error processing file: larger than %d bytes", limit))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Error processing file: larger than %d bytes", limit))
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error processing file: "+err.Error())
		return
	}

	decoded, err := h.Uploads.Decode(header.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error processing file: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:   "success",
		Filename: decoded.Filename,
		Content:  decoded.Content,
	})
}

// --- Task listing ---

type taskSummary struct {
	TaskID       string      `json:"task_id"`
	Status       task.Status `json:"status"`
	TemplateName string      `json:"template_name,omitempty"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{}

	if s := q.Get("status"); s != "" {
		st := task.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(s))
			return
		}
		filter.Status = &st
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	tasks, err := h.Tasks.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]taskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskSummary{
			TaskID:       t.ID,
			Status:       t.Status,
			TemplateName: t.Request.TemplateName,
			Error:        t.Error,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("task_id")
	if h.Tasks.Cancel(id) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if _, err := h.Tasks.Get(r.Context(), id); errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeError(w, http.StatusConflict, "task is not running")
}

// --- Health / version ---

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime"] = time.Since(h.StartAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
