package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"lessonsum/pkg/summarize"

	"github.com/gin-gonic/gin"
)

// stubSummarizer avoids real API calls in tests.
type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, _ string) (summarize.Result, error) {
	return summarize.Split("Overview: stubbed lesson.\nA longer, more detailed summary follows."), nil
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(_ context.Context, _ string) (summarize.Result, error) {
	return summarize.Result{}, errors.New("connection refused")
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// uploadFile posts a multipart body with a single "file" field.
func uploadFile(r http.Handler, token, fileName string, content []byte) *httptest.ResponseRecorder {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", fileName)
	_, _ = w.Write(content)
	_ = mw.Close()
	return performRequest(r, http.MethodPost, "/summarize", buf, token, mw.FormDataContentType())
}

// buildDocx assembles a minimal DOCX archive with one w:t run per paragraph.
func buildDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	doc := `<?xml version="1.0"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := f.Write([]byte(doc)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	initDB()
	summarizer = stubSummarizer{}
	r := gin.Default()
	setupRoutes(r)
	return r
}

func registerAndLogin(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	regBody, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	loginBody, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func listSummaries(t *testing.T, r *gin.Engine, token string) []map[string]any {
	t.Helper()
	resp := performRequest(r, http.MethodGet, "/summaries", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list summaries failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var items []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return items
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	token := registerAndLogin(t, r, "student1", "password1234")

	// unique name per run so count assertions stay stable across reruns
	fileName := fmt.Sprintf("lesson-%d.docx", os.Getpid())
	docx := buildDocx(t, "Limits and continuity.", "The derivative as a limit.")
	resp := uploadFile(r, token, fileName, docx)
	if resp.Code != 200 {
		t.Fatalf("summarize failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	summary, _ := out["summary"].(string)
	overview, _ := out["overview"].(string)
	if summary == "" || overview == "" || out["id"] == nil {
		t.Fatalf("unexpected summarize response: %+v", out)
	}
	wantOverview := summary
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		wantOverview = summary[:i]
	}
	if overview != wantOverview {
		t.Fatalf("overview %q is not the first line of summary %q", overview, summary)
	}

	items := listSummaries(t, r, token)
	found := false
	for _, it := range items {
		if it["file_name"] == fileName {
			found = true
			if it["summary_text"] != summary {
				t.Fatalf("listed summary_text differs from response")
			}
		}
	}
	if !found {
		t.Fatalf("uploaded file %s missing from listing: %+v", fileName, items)
	}

	// detail endpoint returns the stored original text
	id := int(out["id"].(float64))
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/summaries/%d", id), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get summary failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var detail map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &detail)
	orig, _ := detail["original_text"].(string)
	if !strings.Contains(orig, "Limits and continuity.") {
		t.Fatalf("original_text missing extracted content: %q", orig)
	}

	// ownership: a second user cannot see or fetch the record
	token2 := registerAndLogin(t, r, "student2", "password5678")
	for _, it := range listSummaries(t, r, token2) {
		if it["file_name"] == fileName {
			t.Fatalf("user isolation violated: %+v", it)
		}
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/summaries/%d", id), nil, token2, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign record got %d", resp.Code)
	}

	// unauthorized access to protected endpoints should be 401
	unauth := performRequest(r, http.MethodGet, "/summaries", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list got %d", unauth.Code)
	}
}

func TestGetSummaryIDMustBeNumeric(t *testing.T) {
	r := setupTestServer(t)
	token := registerAndLogin(t, r, "student4", "password4444")

	// the caller owns at least one record, so a condition matching "any
	// row" would leak through as 200/403 if the id were not validated
	resp := uploadFile(r, token, fmt.Sprintf("guard-%d.docx", os.Getpid()), buildDocx(t, "Integration by parts."))
	if resp.Code != 200 {
		t.Fatalf("summarize failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	for _, path := range []string{
		"/summaries/1%20OR%201=1",
		"/summaries/1;select%20pg_sleep(0)",
		"/summaries/abc",
		"/summaries/-1",
	} {
		resp := performRequest(r, http.MethodGet, path, nil, token, "")
		if resp.Code != http.StatusNotFound {
			t.Fatalf("non-numeric id %q: want 404 got %d body=%s", path, resp.Code, resp.Body.String())
		}
	}
}

func TestPersistedOriginalTextIsTruncated(t *testing.T) {
	r := setupTestServer(t)
	token := registerAndLogin(t, r, "student5", "password5555")

	old := summaryMaxChars
	summaryMaxChars = 64
	defer func() { summaryMaxChars = old }()

	// multi-byte runes so a byte-based cut would either change the count
	// or split a character
	resp := uploadFile(r, token, fmt.Sprintf("long-%d.docx", os.Getpid()), buildDocx(t, strings.Repeat("é", 300)))
	if resp.Code != 200 {
		t.Fatalf("summarize failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	id := int(out["id"].(float64))

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/summaries/%d", id), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get summary failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var detail map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &detail)
	orig, _ := detail["original_text"].(string)
	if want := strings.Repeat("é", 64); orig != want {
		t.Fatalf("persisted original_text not truncated to %d runes: got %d runes (%d bytes)",
			64, len([]rune(orig)), len(orig))
	}
}

func TestTrailingSlashRoutesServedDirectly(t *testing.T) {
	r := setupTestServer(t)
	token := registerAndLogin(t, r, "student6", "password6666")

	// both spellings must answer directly, no 307 in between
	resp := performRequest(r, http.MethodGet, "/summaries/", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("GET /summaries/ status=%d body=%s", resp.Code, resp.Body.String())
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "slash.docx")
	_, _ = w.Write(buildDocx(t, "Chain rule examples."))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/summarize/", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("POST /summarize/ status=%d body=%s", resp.Code, resp.Body.String())
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	r := setupTestServer(t)

	loginBody, _ := json.Marshal(map[string]string{"username": "student7", "password": "password7777"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	oldRefresh, _ := loginResp["refresh_token"].(string)
	if oldRefresh == "" {
		t.Fatalf("no refresh_token in login response: %+v", loginResp)
	}

	refresh := func(tok string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"refresh_token": tok})
		return performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(body), "", "application/json")
	}

	resp = refresh(oldRefresh)
	if resp.Code != 200 {
		t.Fatalf("refresh failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var rotated map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &rotated)
	newRefresh, _ := rotated["refresh_token"].(string)
	if newRefresh == "" || newRefresh == oldRefresh {
		t.Fatalf("rotation did not issue a fresh token: %+v", rotated)
	}

	// the revoked token is dead, the rotated one usable
	if resp := refresh(oldRefresh); resp.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: status=%d body=%s", resp.Code, resp.Body.String())
	}
	if resp := refresh(newRefresh); resp.Code != 200 {
		t.Fatalf("rotated token rejected: status=%d body=%s", resp.Code, resp.Body.String())
	}
}

func TestSummarizePipelineFailures(t *testing.T) {
	r := setupTestServer(t)
	token := registerAndLogin(t, r, "student3", "password9999")

	before := len(listSummaries(t, r, token))

	// no file field
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("folder", "x")
	_ = mw.Close()
	resp := performRequest(r, http.MethodPost, "/summarize", buf, token, mw.FormDataContentType())
	if resp.Code != 400 || !strings.Contains(resp.Body.String(), "No file uploaded") {
		t.Fatalf("missing file: status=%d body=%s", resp.Code, resp.Body.String())
	}

	// unsupported extension
	resp = uploadFile(r, token, "slides.xyz", []byte("whatever"))
	if resp.Code != 400 || !strings.Contains(resp.Body.String(), "Unsupported file type") {
		t.Fatalf("unsupported type: status=%d body=%s", resp.Code, resp.Body.String())
	}

	// whitespace-only document
	resp = uploadFile(r, token, "empty.docx", buildDocx(t, "   ", ""))
	if resp.Code != 400 || !strings.Contains(resp.Body.String(), "File has no readable text.") {
		t.Fatalf("empty doc: status=%d body=%s", resp.Code, resp.Body.String())
	}

	// corrupt document with a supported extension
	resp = uploadFile(r, token, "broken.pdf", []byte("not a pdf"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("corrupt doc: status=%d body=%s", resp.Code, resp.Body.String())
	}

	// upstream failure: extraction succeeded but nothing may be persisted
	summarizer = failingSummarizer{}
	defer func() { summarizer = stubSummarizer{} }()
	resp = uploadFile(r, token, "good.docx", buildDocx(t, "Real lesson content."))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure: status=%d body=%s", resp.Code, resp.Body.String())
	}

	if after := len(listSummaries(t, r, token)); after != before {
		t.Fatalf("failure paths persisted records: before=%d after=%d", before, after)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := truncateRunes("hello", 2); got != "he" {
		t.Fatalf("want %q got %q", "he", got)
	}
	// multi-byte runes must not be cut mid-character
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("want %q got %q", "hé", got)
	}
	if got := truncateRunes("hello", 0); got != "" {
		t.Fatalf("want empty got %q", got)
	}
}
