package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robertmeta/tpxa/importer"
	"github.com/robertmeta/tpxa/jobs"
	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/tpxa"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// exportOptions applies the query parameters of r to the server defaults.
func (s *Server) exportOptions(r *http.Request) (tpxa.ExportOptions, error) {
	opts := s.opts.Export
	opts.Logger = s.logger
	q := r.URL.Query()

	for name, target := range map[string]*bool{
		"tags_to_categories":              &opts.TagsToCategories,
		"with_descriptions_to_categories": &opts.DescriptionsToCategories,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, tpxa.NewError(tpxa.CodeValidation, nil, "%s must be a boolean", name)
		}
		*target = b
	}
	if keep := q["keep_as_tag"]; len(keep) > 0 {
		opts.KeepAsTags = append(append([]string(nil), opts.KeepAsTags...), keep...)
	}
	return opts, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts, err := s.exportOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(tpxa.CodeValidation), err.Error(), s.logger)
		return
	}
	writer, err := tpxa.NewWriter(s.source, opts)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var title string
	if cfg, err := s.source.Config(ctx); err == nil {
		for _, item := range cfg {
			if item.Key == model.ConfigBlogTitle {
				title = item.Value
			}
		}
	}

	flusher, _ := w.(http.Flusher)
	started := false
	var written int64
	for chunk, err := range writer.Generate(ctx) {
		if err != nil {
			if !started {
				s.writeDomainError(w, err)
				return
			}
			// The status line is gone; all that is left is to cut the body short.
			s.logger.Error("export aborted", "error", err, "bytes", written)
			return
		}
		if !started {
			w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tpxa.ExportFilename(title)))
			w.WriteHeader(http.StatusOK)
			started = true
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			s.logger.Warn("export client went away", "error", err, "bytes", written)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	s.logger.Info("export finished", "bytes", written, "dependencies", writer.Dependencies().Len())
}

type importResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, string(tpxa.CodeValidation), "invalid upload: "+err.Error(), s.logger)
		return
	}

	var (
		id  string
		err error
	)
	if downloadURL := strings.TrimSpace(r.FormValue("download_url")); downloadURL != "" {
		id, err = s.importer.SubmitURL(ctx, downloadURL)
	} else {
		var file multipart.File
		var header *multipart.FileHeader
		file, header, err = r.FormFile("feed")
		if err != nil {
			writeError(w, http.StatusBadRequest, string(tpxa.CodeValidation),
				"upload a feed file or pass a download_url", s.logger)
			return
		}
		defer file.Close()
		id, err = s.importer.Submit(ctx, file, header.Filename)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusAccepted, importResponse{ID: id, StatusURL: "/import/" + id}, s.logger)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "", "import not found", s.logger)
		return
	}
	writeData(w, http.StatusOK, snap, s.logger)
}

// writeDomainError maps coded errors to client errors and everything else
// to the status the cause calls for.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var coded *tpxa.Error
	var download *importer.DownloadError
	switch {
	case errors.As(err, &coded):
		status := http.StatusBadRequest
		if coded.Code == tpxa.CodeSerialization {
			status = http.StatusInternalServerError
		}
		writeError(w, status, string(coded.Code), err.Error(), s.logger)
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "", err.Error(), s.logger)
	case errors.As(err, &download):
		writeError(w, http.StatusBadRequest, "", err.Error(), s.logger)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error", s.logger)
	}
}
