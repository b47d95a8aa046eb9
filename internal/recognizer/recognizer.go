/*
Package recognizer turns images into text.

It decodes an image, makes sure trained data for the requested languages is
present, runs Tesseract on the image or a region of it and reports the
outcome as a Result.
*/
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/imageparser"
	"github.com/johbar/ocr-sample/internal/modelstore"
	"github.com/johbar/ocr-sample/pkg/dehyphenator"
	"github.com/johbar/ocr-sample/pkg/tesswrap"
	"golang.org/x/text/unicode/norm"
)

// ImageSource is an encoded image, either in memory or on disk
type ImageSource struct {
	// Data holds the image's bytes; it takes precedence over Path
	Data []byte
	// Path is a file to read the image from
	Path string
	// Origin is used for logging only
	Origin string
}

// FromBytes returns an in-memory ImageSource
func FromBytes(data []byte, origin string) ImageSource {
	return ImageSource{Data: data, Origin: origin}
}

// FromPath returns an ImageSource reading from a file
func FromPath(path string) ImageSource {
	return ImageSource{Path: path, Origin: path}
}

func (s ImageSource) load(maxBytes uint64) (*imageparser.ImageDoc, error) {
	if s.Path != "" && s.Data == nil {
		return imageparser.Open(s.Path, maxBytes)
	}
	if maxBytes > 0 && uint64(len(s.Data)) > maxBytes {
		return nil, fmt.Errorf("%w: file too large", imageparser.ErrDecode)
	}
	return imageparser.NewFromBytes(s.Data)
}

// engine is what the pipeline needs from a *tesswrap.Engine
type engine interface {
	Recognize(ctx context.Context, imgBytes []byte) (string, error)
	Close() error
}

type engineFactory func(tesswrap.Options) (engine, error)

func newTesswrapEngine(opts tesswrap.Options) (engine, error) {
	e, err := tesswrap.New(opts)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// slot confines an engine to one goroutine at a time
type slot struct {
	sync.Mutex
	e engine
}

// Recognizer keeps initialized engines around, one per models directory
// and language combination. It is safe for concurrent use; recognitions
// needing the same engine are serialized.
type Recognizer struct {
	conf      *config.OcrConfig
	log       *slog.Logger
	newEngine engineFactory

	mu      sync.Mutex
	engines map[string]*slot
	closed  bool
}

// New returns a Recognizer using conf for engine options and post-processing.
func New(conf *config.OcrConfig, logger *slog.Logger) *Recognizer {
	r := &Recognizer{
		conf:      conf,
		log:       logger,
		newEngine: newTesswrapEngine,
		engines:   make(map[string]*slot),
	}
	if logger == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	return r
}

// defaultConfig is used by Recognize
var defaultConfig = &config.OcrConfig{PageSegMode: tesswrap.PSMAuto, EngineMode: tesswrap.OEMDefault}

// Recognize runs the whole pipeline with a fresh engine that is closed
// before returning. Use a Recognizer to amortize engine initialization.
// A nil region means the full image.
func Recognize(ctx context.Context, src ImageSource, store modelstore.Store, language string, region *Rect) Result {
	return New(defaultConfig, nil).run(ctx, src, store, language, region, false)
}

// Recognize runs the pipeline, reusing a cached engine for store and language.
func (r *Recognizer) Recognize(ctx context.Context, src ImageSource, store modelstore.Store, language string, region *Rect) Result {
	return r.run(ctx, src, store, language, region, true)
}

func (r *Recognizer) run(ctx context.Context, src ImageSource, store modelstore.Store, language string, region *Rect, reuse bool) Result {
	log := r.log.With("origin", src.Origin, "lang", language)
	if src.Data == nil && src.Path == "" {
		return Failure(&Error{Kind: FileNotSelected, Msg: "no image given"})
	}

	doc, err := src.load(r.conf.MaxFileSizeBytes)
	if err != nil {
		log.Debug("Decoding image failed", "err", err)
		return Failure(newError(DecodeError, err))
	}
	meta := doc.MetadataMap()
	meta["x-language"] = language
	fail := func(e *Error) Result {
		res := Failure(e)
		res.Meta = meta
		return res
	}
	log.Debug("Image decoded", "type", doc.Type(), "bounds", doc.Bounds())

	bounds, err := region.clip(doc.Bounds())
	if err != nil {
		return fail(newError(RecognitionError, err))
	}
	if err := ctx.Err(); err != nil {
		return fail(newError(RecognitionError, err))
	}

	dir, err := store.Resolve(language)
	if err != nil {
		if modelstore.IsNoLanguage(err) {
			return fail(newError(EngineInitError, err))
		}
		return fail(newError(ModelNotFound, err))
	}

	var text string
	if reuse {
		text, err = r.recognizeCached(ctx, dir, language, doc, bounds)
	} else {
		text, err = r.recognizeFresh(ctx, dir, language, doc, bounds)
	}
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = newError(RecognitionError, err)
		}
		log.Debug("Recognition failed", "err", err)
		return fail(e)
	}

	text, err = r.postProcess(text)
	if err != nil {
		return fail(newError(RecognitionError, err))
	}
	res := Success(text)
	res.Meta = meta
	return res
}

func (r *Recognizer) initEngine(dir, language string) (engine, error) {
	e, err := r.newEngine(r.conf.EngineOptions(dir, language))
	if err != nil {
		return nil, newError(EngineInitError, err)
	}
	return e, nil
}

func (r *Recognizer) recognizeFresh(ctx context.Context, dir, language string, doc *imageparser.ImageDoc, bounds image.Rectangle) (string, error) {
	e, err := r.initEngine(dir, language)
	if err != nil {
		return "", err
	}
	defer e.Close()
	return recognizeRegion(ctx, e, doc, bounds)
}

func (r *Recognizer) recognizeCached(ctx context.Context, dir, language string, doc *imageparser.ImageDoc, bounds image.Rectangle) (string, error) {
	s, err := r.engineSlot(dir, language)
	if err != nil {
		return "", err
	}
	s.Lock()
	defer s.Unlock()
	if s.e == nil {
		// the Recognizer has been closed while we were waiting
		return "", newError(EngineInitError, tesswrap.ErrClosed)
	}
	return recognizeRegion(ctx, s.e, doc, bounds)
}

// engineSlot returns the engine slot for dir and language, initializing the engine on first use.
// Failed initializations are not cached.
func (r *Recognizer) engineSlot(dir, language string) (*slot, error) {
	key := dir + "\x00" + language
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, newError(EngineInitError, tesswrap.ErrClosed)
	}
	if s, ok := r.engines[key]; ok {
		return s, nil
	}
	r.log.Info("Initializing OCR engine", "dir", dir, "lang", language, "impl", tesswrap.Implementation)
	e, err := r.initEngine(dir, language)
	if err != nil {
		r.log.Error("OCR engine initialization failed", "dir", dir, "lang", language, "err", err)
		return nil, err
	}
	s := &slot{e: e}
	r.engines[key] = s
	return s, nil
}

func recognizeRegion(ctx context.Context, e engine, doc *imageparser.ImageDoc, bounds image.Rectangle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(RecognitionError, err)
	}
	img, err := doc.EncodeRegion(bounds)
	if err != nil {
		return "", newError(RecognitionError, err)
	}
	text, err := e.Recognize(ctx, img)
	if err != nil {
		return "", newError(RecognitionError, err)
	}
	return text, nil
}

func (r *Recognizer) postProcess(text string) (string, error) {
	text = norm.NFC.String(text)
	if !r.conf.Dehyphenate {
		return text, nil
	}
	return dehyphenator.Dehyphenator{RemoveNewlines: r.conf.RemoveNewlines}.DehyphenateString(text)
}

// Close releases all engines. Recognitions started afterwards fail with EngineInitError.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var errs []error
	for key, s := range r.engines {
		s.Lock()
		if s.e != nil {
			errs = append(errs, s.e.Close())
			s.e = nil
		}
		s.Unlock()
		delete(r.engines, key)
	}
	return errors.Join(errs...)
}
