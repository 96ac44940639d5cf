// Package server exposes the analysis engine over HTTP.
//
// Information Hiding:
// - Multipart decoding and file staging internal to the handler
// - Upload validation (extension allowlist, size cap) internal
// - The engine seen only through the Runner interface

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/okoro/datalyst/orchestrator"
)

// ErrMissingQuestion is returned when an upload carries no question.txt.
var ErrMissingQuestion = errors.New("question.txt is required but missing")

// questionFile is the upload part that carries the question text.
const questionFile = "question.txt"

// defaultAllowedExtensions limits what auxiliary files may be staged for
// the sandbox.
var defaultAllowedExtensions = []string{".csv", ".json", ".txt", ".xlsx", ".parquet", ".sqlite"}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"|?*]`)

// Runner answers a question against a staged file manifest.
type Runner interface {
	Run(ctx context.Context, question string, manifest map[string]string) orchestrator.Result
}

// Server is the HTTP front door.
type Server struct {
	runner         Runner
	logger         *slog.Logger
	maxUploadBytes int64
	allowedExts    map[string]bool
}

// New creates a server over the given runner.
func New(runner Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]bool, len(defaultAllowedExtensions))
	for _, ext := range defaultAllowedExtensions {
		exts[ext] = true
	}
	return &Server{
		runner:         runner,
		logger:         logger,
		maxUploadBytes: 50 * 1024 * 1024,
		allowedExts:    exts,
	}
}

// WithMaxUploadSize sets the total upload size cap in bytes.
func (s *Server) WithMaxUploadSize(bytes int64) *Server {
	s.maxUploadBytes = bytes
	return s
}

// WithAllowedExtensions replaces the auxiliary file extension allowlist.
func (s *Server) WithAllowedExtensions(exts []string) *Server {
	s.allowedExts = make(map[string]bool, len(exts))
	for _, ext := range exts {
		s.allowedExts[strings.ToLower(ext)] = true
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /", s.handleRoot)
	return mux
}

// handleAnalyze accepts a multipart upload where exactly one part named
// question.txt supplies the question and the remaining parts form the file
// manifest. Validation failures never reach the engine.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	question, manifest, cleanup, err := s.stageUpload(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		s.logger.Warn("rejected upload", "error", err)
		writeJSON(w, http.StatusBadRequest, orchestrator.Result{Success: false, Error: err.Error()})
		return
	}

	s.logger.Info("handling analysis request", "question_len", len(question), "files", len(manifest))
	result := s.runner.Run(r.Context(), question, manifest)
	writeJSON(w, http.StatusOK, result)
}

// stageUpload decodes the multipart body, extracts the question, and writes
// the remaining files into a temporary staging directory. cleanup removes
// the staging directory and is non-nil whenever files were staged.
func (s *Server) stageUpload(r *http.Request) (string, map[string]string, func(), error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, nil, fmt.Errorf("invalid multipart request: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "datalyst_upload_")
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(stagingDir) }

	var question string
	manifest := make(map[string]string)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, cleanup, fmt.Errorf("failed to read upload part: %w", err)
		}

		name := sanitizeFilename(part.FileName())
		if name == "" {
			part.Close()
			continue
		}

		if strings.EqualFold(name, questionFile) {
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return "", nil, cleanup, fmt.Errorf("failed to read question: %w", err)
			}
			question = strings.TrimSpace(string(data))
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !s.allowedExts[ext] {
			part.Close()
			return "", nil, cleanup, fmt.Errorf("file extension %q not allowed for %s", ext, name)
		}

		path := filepath.Join(stagingDir, name)
		if err := writePart(path, part); err != nil {
			return "", nil, cleanup, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		manifest[name] = path
	}

	if question == "" {
		return "", nil, cleanup, ErrMissingQuestion
	}
	return question, manifest, cleanup, nil
}

func writePart(path string, part io.ReadCloser) error {
	defer part.Close()
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, part); err != nil {
		return err
	}
	return out.Close()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"message": "datalyst analysis API is up",
	})
}

// sanitizeFilename strips directory components and characters unsafe for a
// staging path.
func sanitizeFilename(filename string) string {
	if idx := strings.LastIndexAny(filename, `/\`); idx != -1 {
		filename = filename[idx+1:]
	}
	filename = unsafeFilenameChars.ReplaceAllString(filename, "_")
	filename = strings.Trim(filename, " .")
	return filename
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
