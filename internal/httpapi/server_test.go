package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/logstream"
	"github.com/MimeLyc/latexmt-web/internal/persistence"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/service"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failTranslator struct{}

func (failTranslator) Translate(context.Context, []string) ([]string, error) {
	return nil, assert.AnError
}

// testFactory translates German greetings and fails for the "fail" model.
func testFactory() translator.Factory {
	return translator.FactoryFunc(func(ctx context.Context, src, tgt string, cfg translator.BackendConfig) (translator.Translator, translator.Aligner, error) {
		if cfg.Model == "fail" {
			return failTranslator{}, translator.NewPositionalAligner(), nil
		}
		return replaceTranslator{strings.NewReplacer("Hallo", "Hello", "Welt", "world")}, translator.NewPositionalAligner(), nil
	})
}

type replaceTranslator struct {
	r *strings.Replacer
}

func (t replaceTranslator) Translate(_ context.Context, segments []string) ([]string, error) {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = t.r.Replace(s)
	}
	return out, nil
}

type testEnv struct {
	srv   *Server
	store jobs.Store
	dirs  workdir.Dirs
}

func newTestEnv(t *testing.T, jobsEnabled bool, opts ...Option) *testEnv {
	t.Helper()
	base := t.TempDir()
	logger := log.New(log.Config{Format: "json", Output: &bytes.Buffer{}})

	store, err := persistence.NewSQLiteStore(filepath.Join(base, "jobs.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dirs := workdir.New(filepath.Join(base, "work"))
	require.NoError(t, dirs.Ensure())

	pool := resource.NewPool(testFactory(), logger)
	single := service.NewSingleShot(pool, nil, translator.BackendConfig{}, logger)

	all := []Option{WithLogger(logger), WithIntervals(50*time.Millisecond, 0)}
	if jobsEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		queue := jobs.NewQueue(1, logger)
		pipeline := service.NewPipeline(store, pool, dirs, nil, translator.BackendConfig{}, logger)
		queue.Start(ctx, pipeline.Run)
		t.Cleanup(func() {
			cancel()
			queue.Stop()
		})

		svc := service.NewJobService(store, dirs, queue, logger)
		logs := logstream.NewStreamer(store, dirs.LogFile, 20*time.Millisecond, logger)
		all = append(all, WithJobs(svc, logs))
	}

	return &testEnv{
		srv:   NewServer(single, append(all, opts...)...),
		store: store,
		dirs:  dirs,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("document", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestServer_HealthReportsActiveJobs(t *testing.T) {
	env := newTestEnv(t, false, WithActiveJobs(func() int { return 3 }))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["active_jobs"])
	assert.Equal(t, false, body["jobs_enabled"])
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc")
	rec := env.do(req)
	assert.Equal(t, "abc", rec.Header().Get(requestIDHeader))
}

func TestServer_JobsDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/jobs", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/1/download", nil),
		multipartRequest(t, "/api/jobs", map[string]string{"src_lang": "de", "tgt_lang": "en"}, "a.tex", "Hallo"),
	} {
		rec := env.do(req)
		require.Equal(t, http.StatusForbidden, rec.Code, req.URL.Path)
		assert.Equal(t, jobsDisabledMsg, decodeError(t, rec))
	}
}

func TestServer_SubmitRunDownload(t *testing.T) {
	env := newTestEnv(t, true)

	doc := `\documentclass{article}\begin{document}Hallo\end{document}`
	rec := env.do(multipartRequest(t, "/api/jobs", map[string]string{"src_lang": "de", "tgt_lang": "en"}, "paper.tex", doc))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Positive(t, created.ID)
	assert.Equal(t, jobs.StatusNew, created.Status)
	assert.Nil(t, created.DownloadURL)

	jobPath := "/api/jobs/" + itoa(created.ID)
	require.Eventually(t, func() bool {
		rec := env.do(httptest.NewRequest(http.MethodGet, jobPath, nil))
		var job jobs.Job
		return rec.Code == http.StatusOK && json.Unmarshal(rec.Body.Bytes(), &job) == nil && job.Status == jobs.StatusDone
	}, 5*time.Second, 20*time.Millisecond)

	rec = env.do(httptest.NewRequest(http.MethodGet, jobPath, nil))
	var done map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, jobs.DownloadPath(created.ID), done["download_url"])
	assert.NotContains(t, done, "glossary")

	rec = env.do(httptest.NewRequest(http.MethodGet, jobPath+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `\documentclass{article}\begin{document}Hello\end{document}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="paper.tex"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, jobPath, nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, string(jobs.StatusArchived), done["status"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestServer_SubmitValidation(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(multipartRequest(t, "/api/jobs", map[string]string{"src_lang": "de", "tgt_lang": "en"}, "", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "document is required", decodeError(t, rec))

	rec = env.do(multipartRequest(t, "/api/jobs", map[string]string{"src_lang": "de"}, "a.tex", "Hallo"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "tgt_lang")
}

func TestServer_UnknownJob(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job 99 does not exist", decodeError(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/99/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DownloadRunningJobConflicts(t *testing.T) {
	env := newTestEnv(t, true)
	job, err := env.store.Create(context.Background(), jobs.Job{Status: jobs.StatusProcessing, SrcLang: "de", TgtLang: "en"})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(env.dirs.Output(job.ID), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dirs.Output(job.ID), "a.tex"), []byte("Hello"), 0o644))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+itoa(job.ID)+"/download", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec), "still processing")

	got, err := env.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
}

func TestServer_DeleteJob(t *testing.T) {
	env := newTestEnv(t, true)
	job, err := env.store.Create(context.Background(), jobs.Job{Status: jobs.StatusDone, SrcLang: "de", TgtLang: "en"})
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/jobs/"+itoa(job.ID), nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/jobs/"+itoa(job.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Translate(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(multipartRequest(t, "/api/translate", map[string]string{
		"input_text": "Hallo \\textbf{Welt}\r\n",
		"src_lang":   "de",
		"tgt_lang":   "en",
	}, "", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hello \\textbf{world}\n", rec.Body.String())
	assert.Equal(t, string(service.OutcomeTranslated), rec.Header().Get(outcomeHeader))
}

func TestServer_TranslateFailure(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(multipartRequest(t, "/api/translate", map[string]string{
		"input_text": "Hallo",
		"src_lang":   "de",
		"tgt_lang":   "en",
		"model":      "fail",
	}, "", ""))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(service.OutcomeFailed), rec.Header().Get(outcomeHeader))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
	assert.Contains(t, body, "output")
}

func TestServer_TranslateValidation(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(multipartRequest(t, "/api/translate", map[string]string{"src_lang": "de", "tgt_lang": "en"}, "", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "input_text is required", decodeError(t, rec))

	rec = env.do(multipartRequest(t, "/api/translate", map[string]string{"input_text": "x", "src_lang": "de", "tgt_lang": "en", "backend": "opus"}, "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_JobStream(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.store.Create(context.Background(), jobs.Job{Status: jobs.StatusDone, SrcLang: "de", TgtLang: "en"})
	require.NoError(t, err)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	events := 0
	for events < 2 && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var list []jobs.Job
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &list))
		require.Len(t, list, 1)
		events++
	}
	assert.Equal(t, 2, events)
}

func dialLog(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + id + "/log"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestServer_LogWithoutFileSendsOneErrorThenCloses(t *testing.T) {
	env := newTestEnv(t, true)
	job, err := env.store.Create(context.Background(), jobs.Job{Status: jobs.StatusNew, SrcLang: "de", TgtLang: "en"})
	require.NoError(t, err)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()
	conn := dialLog(t, ts, itoa(job.ID))

	var event map[string]string
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, map[string]string{"error": "No log file for job " + itoa(job.ID)}, event)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_LogUnknownJob(t *testing.T) {
	env := newTestEnv(t, true)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()
	conn := dialLog(t, ts, "42")

	var event map[string]string
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "Job 42 does not exist", event["error"])
}

func TestServer_LogStreamsLines(t *testing.T) {
	env := newTestEnv(t, true)
	job, err := env.store.Create(context.Background(), jobs.Job{Status: jobs.StatusProcessing, SrcLang: "de", TgtLang: "en"})
	require.NoError(t, err)
	logPath := env.dirs.LogFile(job.ID)
	require.NoError(t, os.WriteFile(logPath, []byte("first\nsecond\n"), 0o644))

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()
	conn := dialLog(t, ts, itoa(job.ID))

	for _, want := range []string{"first", "second"} {
		var event map[string]string
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, want, event["log_line"])
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("third\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var event map[string]string
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "third", event["log_line"])
}

func TestServer_LogClosesWhenJobsDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()
	conn := dialLog(t, ts, "1")

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, jobsDisabledMsg, closeErr.Text)
}

func TestServer_StaticUIFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	env := newTestEnv(t, false, WithUI(dir))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/jobs/3", nil))
	assert.Contains(t, rec.Body.String(), "<html>app</html>")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	assert.Contains(t, rec.Body.String(), "<html>app</html>")
}

func TestServer_NoUIIsNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
