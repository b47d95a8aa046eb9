package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/johbar/ocr-sample/internal/cache"
	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/recognizer"
	"github.com/johbar/ocr-sample/internal/testimage"
	"github.com/johbar/ocr-sample/pkg/tesswrap"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func (m *mapCache) Get(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *mapCache) Save(_ context.Context, key string, e cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func testServer(t *testing.T, c cache.Cache, modelsDir string) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conf := &config.OcrConfig{
		ModelsDir:        modelsDir,
		Languages:        "eng",
		PageSegMode:      tesswrap.PSMAuto,
		EngineMode:       tesswrap.OEMDefault,
		MaxFileSizeBytes: 1 << 20,
	}
	rec := recognizer.New(conf, nil)
	s := New(conf, rec, c, nil)
	t.Cleanup(func() {
		s.Close()
		rec.Close()
	})
	return s, s.Router(s.log)
}

func modelsDir(t *testing.T, langs ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, l := range langs {
		if err := os.WriteFile(filepath.Join(dir, l+".traineddata"), []byte("model"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func post(router http.Handler, query string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/"+query, bytes.NewReader(body))
	router.ServeHTTP(w, req)
	return w
}

func TestRecognizeBodyErrors(t *testing.T) {
	png := testimage.PNG(testimage.Text("HELLO", 2))
	cases := []struct {
		name   string
		query  string
		body   []byte
		status int
	}{
		{"empty body", "", nil, http.StatusBadRequest},
		{"not an image", "", []byte("HELLO"), http.StatusUnprocessableEntity},
		{"too large", "", make([]byte, 2<<20), http.StatusUnprocessableEntity},
		{"unknown language", "?lang=xyz", png, http.StatusNotFound},
		{"malformed rect", "?rect=1,2", png, http.StatusBadRequest},
	}
	_, router := testServer(t, nil, modelsDir(t, "eng"))
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := post(router, c.query, c.body)
			if w.Code != c.status {
				t.Errorf("want %d, got %d: %s", c.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestRecognizeBodyMetadataHeaders(t *testing.T) {
	_, router := testServer(t, nil, modelsDir(t))
	w := post(router, "?lang=deu", testimage.PNG(testimage.Text("HI", 1)))
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
	if w.Header().Get("x-doctype") != "png" || w.Header().Get("x-language") != "deu" {
		t.Errorf("unexpected headers %v", w.Header())
	}
	if !strings.HasPrefix(w.Body.String(), "ModelNotFound") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestRecognizeBodyFromCache(t *testing.T) {
	img := testimage.PNG(testimage.Text("HELLO", 2))
	c := &mapCache{entries: map[string]cache.Entry{
		cache.Key(img, "eng", ""): {Text: []byte("cached"), Metadata: map[string]string{"x-doctype": "png"}},
	}}
	// no models at all: only the cache can answer
	_, router := testServer(t, c, modelsDir(t))
	w := post(router, "", img)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "cached" || w.Header().Get("x-cached") != "true" {
		t.Errorf("unexpected response %q %v", w.Body.String(), w.Header())
	}
	w = post(router, "?noCache", img)
	if w.Code != http.StatusNotFound {
		t.Errorf("noCache must bypass the cache, got %d", w.Code)
	}
}

func TestRecognizeBodyTesseract(t *testing.T) {
	if !tesswrap.Initialized {
		t.Skip("tesseract not available")
	}
	dir := os.Getenv("OCR_MODELS_DIR")
	if dir == "" {
		dir = "/usr/share/tesseract-ocr/5/tessdata"
	}
	if _, err := os.Stat(filepath.Join(dir, "eng.traineddata")); err != nil {
		t.Skip("no eng.traineddata found")
	}
	c := &mapCache{entries: map[string]cache.Entry{}}
	s, router := testServer(t, c, dir)
	img := testimage.PNG(testimage.Text("HELLO", 4))
	w := post(router, "?lang=eng", img)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "HELLO") {
		t.Errorf("want HELLO, got %q", w.Body.String())
	}
	s.Close()
	if _, ok := c.entries[cache.Key(img, "eng", "")]; !ok {
		t.Error("result has not been cached")
	}
}

func TestLangs(t *testing.T) {
	_, router := testServer(t, nil, modelsDir(t, "eng", "deu"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/langs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var langs []string
	if err := json.Unmarshal(w.Body.Bytes(), &langs); err != nil {
		t.Fatal(err)
	}
	if strings.Join(langs, "+") != "deu+eng" {
		t.Errorf("unexpected languages %v", langs)
	}

	_, router = testServer(t, nil, "/does/not/exist")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/langs", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("want 500, got %d", w.Code)
	}
}

func TestDebugVars(t *testing.T) {
	_, router := testServer(t, nil, modelsDir(t))
	post(router, "", []byte("garbage"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"DecodeError"`) {
		t.Errorf("recognition counters missing: %s", w.Body.String())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	c := &mapCache{entries: map[string]cache.Entry{}}
	s, _ := testServer(t, c, modelsDir(t))
	if !s.enqueue(savedResult{key: "before", entry: cache.Entry{Text: []byte("x")}}) {
		t.Fatal("open server rejected a result")
	}
	s.Close()
	if _, ok := c.entries["before"]; !ok {
		t.Error("Close returned before pending results were saved")
	}
	// a request finishing after shutdown must not panic
	if s.enqueue(savedResult{key: "after"}) {
		t.Error("closed server accepted a result")
	}
	s.Close()
}

func TestStatusCode(t *testing.T) {
	cases := map[recognizer.Kind]int{
		0:                           http.StatusOK,
		recognizer.FileNotSelected:  http.StatusBadRequest,
		recognizer.DecodeError:      http.StatusUnprocessableEntity,
		recognizer.ModelNotFound:    http.StatusNotFound,
		recognizer.EngineInitError:  http.StatusInternalServerError,
		recognizer.RecognitionError: http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusCode(kind); got != want {
			t.Errorf("%v: want %d, got %d", kind, want, got)
		}
	}
}
