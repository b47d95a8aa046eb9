// Package server exposes the recognizer via HTTP and as a NATS micro service.
package server

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"sync"
	"time"

	ginexpvar "github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	"github.com/johbar/ocr-sample/internal/cache"
	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/modelstore"
	"github.com/johbar/ocr-sample/internal/recognizer"
	"github.com/johbar/ocr-sample/pkg/mmappool"
	sloggin "github.com/samber/slog-gin"
)

var (
	// recognitions counts finished recognitions by outcome, "OK" or the error kind
	recognitions = expvar.NewMap("recognitions")
	cacheHits    = expvar.NewInt("cache_hits")
)

type RequestParams struct {
	// Lang is a '+'-separated list of languages; the configured default if empty
	Lang string `form:"lang" json:"lang"`
	// Rect restricts recognition to x,y,w,h; the whole image if empty
	Rect string `form:"rect" json:"rect"`
	// Ignore cached result
	NoCache bool `form:"noCache" json:"noCache"`
	// Image is the encoded image; base64 in JSON
	Image []byte `json:"image,omitempty"`
}

type savedResult struct {
	key   string
	entry cache.Entry
}

type Server struct {
	conf      *config.OcrConfig
	rec       *recognizer.Recognizer
	store     modelstore.Store
	ocrCache  cache.Cache
	cacheNop  bool
	log       *slog.Logger
	saveChan  chan savedResult
	saverDone chan struct{}
	// closeMu guards closed; senders hold it for reading while they send on saveChan
	closeMu sync.RWMutex
	closed  bool
	// bodies holds buffers for request bodies; nil if the size is unlimited
	bodies *mmappool.Pool
}

// New returns a Server. ocrCache may be nil.
func New(conf *config.OcrConfig, rec *recognizer.Recognizer, ocrCache cache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if ocrCache == nil {
		ocrCache = &cache.NopCache{}
	}
	s := &Server{
		conf:      conf,
		rec:       rec,
		store:     modelstore.New(conf.ModelsDir),
		ocrCache:  ocrCache,
		log:       logger,
		saveChan:  make(chan savedResult, 100),
		saverDone: make(chan struct{}),
	}
	_, s.cacheNop = ocrCache.(*cache.NopCache)
	if limit := conf.MaxFileSizeBytes; limit >= 8 && limit < math.MaxInt32 {
		// one byte more than allowed, so the recognizer can reject it
		s.bodies = mmappool.New(int(limit)+1, runtime.GOMAXPROCS(0), logger)
	}
	go s.saveResults()
	return s
}

// Close stops accepting results for the cache and waits until pending ones are saved.
func (s *Server) Close() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.saveChan)
	}
	s.closeMu.Unlock()
	<-s.saverDone
	if s.bodies != nil {
		if err := s.bodies.Free(); err != nil {
			s.log.Warn("Releasing body buffers failed", "err", err)
		}
	}
}

// enqueue hands r to the saver. It returns false once the server is closed.
func (s *Server) enqueue(r savedResult) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	s.saveChan <- r
	return true
}

func (s *Server) saveResults() {
	defer close(s.saverDone)
	for r := range s.saveChan {
		for i := 0; i <= 5; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := s.ocrCache.Save(ctx, r.key, r.entry)
			cancel()
			if err == nil {
				s.log.Debug("Saved text in NATS object store bucket", "key", r.key, "size", len(r.entry.Text))
				break
			}
			s.log.Warn("Could not save text to cache", "retries", i, "key", r.key, "err", err)
		}
	}
}

// Recognize serves the request from the cache if possible, otherwise runs the recognizer.
// It reports whether the result came from the cache.
func (s *Server) Recognize(ctx context.Context, params RequestParams, origin string) (recognizer.Result, bool, error) {
	lang := params.Lang
	if lang == "" {
		lang = s.conf.Languages
	}
	var rect *recognizer.Rect
	var region string
	if params.Rect != "" {
		var err error
		if rect, err = recognizer.ParseRect(params.Rect); err != nil {
			return recognizer.Result{}, false, err
		}
		region = rect.String()
	}
	data := params.Image
	if len(data) == 0 {
		data = nil
	}

	var key string
	if data != nil && !s.cacheNop {
		key = cache.Key(data, lang, region)
		if !params.NoCache {
			if e, err := s.ocrCache.Get(ctx, key); err != nil {
				s.log.Error("Could not get text from NATS object store", "key", key, "err", err)
			} else if e != nil {
				cacheHits.Add(1)
				s.log.Debug("Serving text from cache", "key", key, "origin", origin)
				res := recognizer.Success(string(e.Text))
				res.Meta = e.Metadata
				return res, true, nil
			}
		}
	}

	if s.conf.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.conf.RequestTimeout)
		defer cancel()
	}
	res := s.rec.Recognize(ctx, recognizer.FromBytes(data, origin), s.store, lang, rect)
	if res.OK() {
		recognitions.Add("OK", 1)
		s.log.Info("Recognition finished", "origin", origin, "lang", lang, "region", region, "chars", len(res.Text))
		if key != "" {
			meta := make(map[string]string, len(res.Meta)+1)
			for k, v := range res.Meta {
				meta[k] = v
			}
			if region != "" {
				meta["x-region"] = region
			}
			if !s.enqueue(savedResult{key: key, entry: cache.Entry{Text: []byte(res.Text), Metadata: meta}}) {
				s.log.Debug("Server closed, result not cached", "origin", origin)
			}
		}
	} else {
		recognitions.Add(res.Err.Kind.String(), 1)
		s.log.Warn("Recognition failed", "origin", origin, "lang", lang, "region", region, "err", res.Err)
	}
	return res, false, nil
}

// StatusCode maps a recognition error kind to an HTTP status
func StatusCode(kind recognizer.Kind) int {
	switch kind {
	case 0:
		return http.StatusOK
	case recognizer.FileNotSelected:
		return http.StatusBadRequest
	case recognizer.DecodeError:
		return http.StatusUnprocessableEntity
	case recognizer.ModelNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RecognizeBody returns the text recognized in the request body.
func (s *Server) RecognizeBody(c *gin.Context) {
	params := RequestParams{Lang: c.Query("lang"), Rect: c.Query("rect")}
	_, params.NoCache = c.GetQuery("noCache")
	var data []byte
	var err error
	switch {
	case s.bodies != nil:
		var buf []byte
		data, buf, err = s.bodies.ReadAll(c.Request.Body)
		defer s.bodies.Put(buf)
	case s.conf.MaxFileSizeBytes > 0:
		data, err = io.ReadAll(io.LimitReader(c.Request.Body, int64(s.conf.MaxFileSizeBytes)+1))
	default:
		data, err = io.ReadAll(c.Request.Body)
	}
	if err != nil {
		s.log.Error("Error reading request body", "err", err)
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	params.Image = data

	res, cached, err := s.Recognize(c.Request.Context(), params, "POST request")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	for k, v := range res.Meta {
		c.Header(k, v)
	}
	if cached {
		c.Header("x-cached", "true")
	}
	if !res.OK() {
		c.String(StatusCode(res.Err.Kind), res.Message())
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(res.Text))
}

// Langs lists the languages available in the model store
func (s *Server) Langs(c *gin.Context) {
	langs, err := s.store.Languages()
	if err != nil {
		s.log.Error("Listing languages failed", "dir", s.store.Dir, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if langs == nil {
		langs = []string{}
	}
	c.JSON(http.StatusOK, langs)
}

// Router returns the HTTP routes. Requests are logged to logger.
func (s *Server) Router(logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(logger), gin.Recovery())
	router.POST("/", s.RecognizeBody)
	router.GET("/langs", s.Langs)
	router.GET("/debug/vars", ginexpvar.Handler())
	return router
}

// LogValue omits the image from log records
func (p RequestParams) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("lang", p.Lang),
		slog.String("rect", p.Rect),
		slog.Bool("noCache", p.NoCache),
		slog.Int("imageBytes", len(p.Image)))
}
