package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/history"
	"github.com/JonMunkholm/csvsplit/internal/logging"
	"github.com/JonMunkholm/csvsplit/internal/web/templates"
)

const (
	// multipartOverhead is allowed on top of MaxFileSize for form framing.
	multipartOverhead = 1 << 20

	maxHistoryLimit = 500
)

// splitInput is a parsed inspect or split request: an uploaded file or a
// path under the configured input directory.
type splitInput struct {
	Upload *core.RawFile
	Path   string
	Rows   int
}

// splitBody is the JSON form of a split request.
type splitBody struct {
	Path string `json:"path"`
	Rows *int   `json:"rows"`
}

// progressEvent adds the completion percentage to a progress update.
type progressEvent struct {
	core.SplitProgress
	Percent int `json:"percent"`
}

// POST /api/inspect
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	in, err := s.readSplitInput(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	var info core.FileInfo
	if in.Upload != nil {
		info, err = s.service.Inspect(r.Context(), *in.Upload)
	} else {
		info, err = s.service.InspectPath(r.Context(), in.Path)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		w.Header().Set("X-Suggested-Rows", strconv.Itoa(info.SuggestedChunkSize))
		s.render(w, r, templates.FileSummary(info))
		return
	}
	writeJSON(w, info)
}

// POST /api/split
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	in, err := s.readSplitInput(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	req := core.SplitRequest{
		Path:      in.Path,
		ChunkSize: in.Rows,
		Source:    "web",
	}
	if in.Upload != nil {
		req.FileName = in.Upload.Name
		req.Data = in.Upload.Data
	}

	ctx := withRequestMeta(r.Context(), r)
	jobID, err := s.service.StartSplit(ctx, req)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	logging.WithFields(ctx, "job_id", jobID, "file", req.FileName, "rows", req.ChunkSize).
		Info("split started")
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// GET /api/split/{jobID}/progress streams progress as server-sent events
// until the job ends. The event ID is the completion percentage, so a
// reconnecting client that sends Last-Event-ID skips what it has seen.
func (s *Server) handleSplitProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	} else if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}

	progressCh, err := s.service.SubscribeProgress(jobID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if percent < lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, err := json.Marshal(progressEvent{SplitProgress: progress, Percent: percent})
			if err != nil {
				logging.FromContext(r.Context()).Error("encode progress", "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// GET /api/split/{jobID}/result returns 202 with the progress while the
// job runs and the result once it has ended.
func (s *Server) handleSplitResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	progress, err := s.service.GetProgress(jobID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if !progress.Phase.Terminal() {
		writeJSONStatus(w, http.StatusAccepted, progressEvent{SplitProgress: progress, Percent: progress.Percent()})
		return
	}

	res, err := s.service.GetResult(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		if res.Chunks == 0 && res.Error != "" {
			s.respondError(w, r, errors.New(res.Error), http.StatusOK)
			return
		}
		s.render(w, r, templates.ResultCard(res))
		return
	}
	writeJSON(w, res)
}

// POST /api/split/{jobID}/cancel
func (s *Server) handleCancelSplit(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.CancelSplit(jobID); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "cancelling"})
}

// POST /api/split/{jobID}/resave writes a finished job's files again into
// its original output directory.
func (s *Server) handleResave(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	ctx := withRequestMeta(r.Context(), r)
	res, err := s.service.Resave(ctx, jobID, "")
	if res == nil {
		s.respondError(w, r, err, 0)
		return
	}

	status := http.StatusOK
	if err != nil {
		logging.FromContext(ctx).Warn("resave incomplete", "job_id", jobID, "error", err)
		status = http.StatusInternalServerError
	}

	if isHTMX(r) {
		s.render(w, r, templates.ResultCard(res))
		return
	}
	writeJSONStatus(w, status, res)
}

// GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest), 0)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.service.ListHistory(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		s.render(w, r, templates.HistoryTable(entries))
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// readSplitInput accepts multipart form data with a "file" part and an
// optional "rows" field, or a JSON body naming a path.
func (s *Server) readSplitInput(w http.ResponseWriter, r *http.Request) (splitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var body splitBody
		if err := json.NewDecoder(io.LimitReader(r.Body, multipartOverhead)).Decode(&body); err != nil {
			return splitInput{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		rows := 0
		if body.Rows != nil {
			if *body.Rows <= 0 {
				return splitInput{}, fmt.Errorf("%w: got %d", core.ErrInvalidChunkSize, *body.Rows)
			}
			rows = *body.Rows
		}
		path, err := s.resolvePath(body.Path)
		if err != nil {
			return splitInput{}, err
		}
		return splitInput{Path: path, Rows: rows}, nil

	case "multipart/form-data":
		return s.readUpload(w, r)

	default:
		return splitInput{}, fmt.Errorf("%w: unsupported content type %q", errBadRequest, mediaType)
	}
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (splitInput, error) {
	maxSize := s.cfg.Split.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if tooLarge(err) {
			return splitInput{}, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return splitInput{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	rows, err := parseRows(r.FormValue("rows"))
	if err != nil {
		return splitInput{}, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if path := r.FormValue("path"); path != "" {
			resolved, err := s.resolvePath(path)
			if err != nil {
				return splitInput{}, err
			}
			return splitInput{Path: resolved, Rows: rows}, nil
		}
		return splitInput{}, errors.New("no file provided")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(err) {
			return splitInput{}, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return splitInput{}, fmt.Errorf("read error: %w", err)
	}

	name := filepath.Base(header.Filename)
	return splitInput{
		Upload: &core.RawFile{Name: name, Data: data},
		Rows:   rows,
	}, nil
}

// resolvePath maps a client path onto the input directory. Absolute paths
// and paths escaping the directory are rejected.
func (s *Server) resolvePath(p string) (string, error) {
	root := s.cfg.Split.InputDir
	if root == "" {
		return "", errPathsDisabled
	}
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("no file provided")
	}
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: path must be relative to the input directory", errBadRequest)
	}
	return filepath.Join(root, p), nil
}

// parseRows reads the optional rows-per-file field. Empty selects the
// server default.
func parseRows(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: got %q", core.ErrInvalidChunkSize, v)
	}
	return n, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render", "error", err)
	}
}
