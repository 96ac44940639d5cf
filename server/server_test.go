package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/okoro/datalyst/orchestrator"
)

// stubRunner records the request it received and returns a fixed result.
type stubRunner struct {
	question string
	manifest map[string]string
	result   orchestrator.Result
	calls    int
}

func (r *stubRunner) Run(ctx context.Context, question string, manifest map[string]string) orchestrator.Result {
	r.calls++
	r.question = question
	r.manifest = manifest
	return r.result
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func postAnalyze(t *testing.T, runner Runner, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	New(runner, nil).Handler().ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeHappyPath(t *testing.T) {
	runner := &stubRunner{result: orchestrator.Result{
		Success:     true,
		FinalAnswer: "4",
		APIUsed:     "gemini",
		Iterations:  1,
	}}

	rec := postAnalyze(t, runner, map[string]string{
		"question.txt": "What is 2+2?",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if runner.question != "What is 2+2?" {
		t.Errorf("question = %q", runner.question)
	}

	var result orchestrator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !result.Success || result.FinalAnswer != "4" || result.APIUsed != "gemini" {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalyzeMissingQuestion(t *testing.T) {
	runner := &stubRunner{}

	rec := postAnalyze(t, runner, map[string]string{
		"data.csv": "a,b\n1,2\n",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	// Validation happens before the engine is invoked.
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
	if !strings.Contains(rec.Body.String(), "question.txt is required") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestAnalyzeEmptyQuestionRejected(t *testing.T) {
	runner := &stubRunner{}

	rec := postAnalyze(t, runner, map[string]string{
		"question.txt": "   \n",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
}

func TestAnalyzeStagesAuxiliaryFiles(t *testing.T) {
	runner := &stubRunner{result: orchestrator.Result{Success: true}}

	rec := postAnalyze(t, runner, map[string]string{
		"question.txt": "summarize",
		"sales.csv":    "region,total\nwest,100\n",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	staged := runner.manifest["sales.csv"]
	if staged == "" {
		t.Fatalf("manifest = %v, want sales.csv", runner.manifest)
	}
	// Staging directory is cleaned up after the request.
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("staged file %s survived the request", staged)
	}
}

func TestAnalyzeRejectsDisallowedExtension(t *testing.T) {
	runner := &stubRunner{}

	rec := postAnalyze(t, runner, map[string]string{
		"question.txt": "run this",
		"payload.exe":  "MZ",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
}

func TestAnalyzeSanitizesFilenames(t *testing.T) {
	runner := &stubRunner{result: orchestrator.Result{Success: true}}

	rec := postAnalyze(t, runner, map[string]string{
		"../../etc/passwd.txt": "root",
		"question.txt":         "q",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if _, ok := runner.manifest["passwd.txt"]; !ok {
		t.Errorf("manifest = %v, want sanitized passwd.txt", runner.manifest)
	}
}

func TestRootHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	New(&stubRunner{}, nil).Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "running") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"data.csv", "data.csv"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`C:\temp\report.xlsx`, "report.xlsx"},
		{"we<ird>.csv", "we_ird_.csv"},
		{" .hidden. ", "hidden"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
