package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"turnocal/internal/extract"
	"turnocal/internal/fsutil"
	appLog "turnocal/internal/log"
	"turnocal/internal/model"
	"turnocal/internal/roster"
	"turnocal/internal/service"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleUpload imports the multipart field "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !extract.Supported(name) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported document type")
		return
	}
	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.stageUpload(name, body)

	res, err := s.svc.Import(r.Context(), extract.Document{Name: name, Body: body})
	if err != nil {
		s.fail(w, "upload import failed", err, "file", name)
		return
	}
	writeJSON(w, http.StatusCreated, toImportResponse(res))
}

// stageUpload keeps a copy of the upload; failures are only logged.
func (s *Server) stageUpload(name string, body []byte) {
	if s.cfg == nil || s.cfg.UploadDir == "" {
		return
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+name)
	if err := fsutil.WriteFileAtomic(path, body, 0o600); err != nil {
		appLog.Error("failed to stage upload", err, "path", path)
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.svc.Result(chi.URLParam(r, "token"))
	if !ok {
		writeError(w, http.StatusNotFound, "result expired or unknown")
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(res))
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	imps, err := s.svc.Imports(r.Context(), q.Get("partition"), parseIntDefault(q.Get("limit"), 50))
	if err != nil {
		s.fail(w, "list imports failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toImportDTOs(imps))
}

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.svc.ListPartitions(r.Context())
	if err != nil {
		s.fail(w, "list partitions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartitionDTOs(infos))
}

// handlePersonalView serves a person's decoded and original rows; an
// unknown name is a 404.
func (s *Server) handlePersonalView(w http.ResponseWriter, r *http.Request) {
	p, err := roster.ParsePartition(chi.URLParam(r, "partition"))
	if err != nil {
		s.fail(w, "personal view", err)
		return
	}
	view, err := s.svc.PersonalView(r.Context(), p, chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, "personal view failed", err, "partition", p.Key())
		return
	}
	writeJSON(w, http.StatusOK, toPersonalView(view))
}

// handleFindBySlot answers GET /api/partitions/{partition}/slots?day=10&value=07:30 (4).
func (s *Server) handleFindBySlot(w http.ResponseWriter, r *http.Request) {
	p, err := roster.ParsePartition(chi.URLParam(r, "partition"))
	if err != nil {
		s.fail(w, "slot query", err)
		return
	}
	q := r.URL.Query()
	day, err := strconv.Atoi(q.Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be an integer")
		return
	}
	value := strings.TrimSpace(q.Get("value"))
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	people, err := s.svc.FindBySlot(r.Context(), p, day, value)
	if err != nil {
		s.fail(w, "slot query failed", err, "partition", p.Key())
		return
	}
	writeJSON(w, http.StatusOK, slotResponse{Partition: p.Key(), Day: day, Value: value, People: people})
}

// handleSwap answers GET /api/swap?date=2025-04-10&time=07:30&duration=4.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := time.ParseInLocation("2006-01-02", q.Get("date"), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration must be an integer")
		return
	}

	people, err := s.svc.SwapCandidates(r.Context(), date, q.Get("time"), duration)
	if err != nil {
		s.fail(w, "swap query failed", err)
		return
	}
	p := model.Partition{Month: date.Month(), Year: date.Year()}
	writeJSON(w, http.StatusOK, slotResponse{
		Partition: p.Key(),
		Day:       date.Day(),
		Value:     q.Get("time") + " (" + strconv.Itoa(duration) + ")",
		People:    people,
	})
}

// handleDownload serves a person's monthly feed. With ?year= a missing
// feed is synthesized from the store first.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	month, ok := model.MonthByName(chi.URLParam(r, "month"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown month")
		return
	}
	year := parseIntDefault(r.URL.Query().Get("year"), 0)

	feed, err := s.svc.Feed(r.Context(), name, month, year)
	if err != nil {
		s.fail(w, "feed download failed", err, "name", name)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(feed.Path)+`"`)
	w.Header().Set("X-Event-Count", strconv.Itoa(feed.Events))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(feed.Body)
}

// fail maps err to a status code and writes it as JSON. Server-side
// failures are logged.
func (s *Server) fail(w http.ResponseWriter, msg string, err error, kv ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error(msg, err, kv...)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case model.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrAnchorNotFound), errors.Is(err, model.ErrEmptyExtraction):
		return http.StatusUnprocessableEntity
	case model.IsClientError(err), errors.Is(err, service.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
