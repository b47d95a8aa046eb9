//go:build tesseract_lib

package tesswrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/raff/go-tesseract"
)

const Implementation = "tesseract_lib"

func init() {
	Version = tesseract.Version()
	Initialized = true
}

// Engine owns a TessBaseAPI handle.
type Engine struct {
	tess *tesseract.BaseAPI
}

// ListLangs returns the languages with trained data in dataPath
func ListLangs(dataPath string) ([]string, error) {
	return listTrainedData(dataPath)
}

// New creates and initializes a TessBaseAPI handle.
// The engine mode is applied as the tessedit_ocr_engine_mode variable.
func New(opts Options) (*Engine, error) {
	langs := opts.LanguageList()
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: no language given", ErrInit)
	}
	tess := tesseract.BaseAPICreate()
	if ret := tess.Init3(opts.DataPath, strings.Join(langs, "+")); ret != 0 {
		tess.End()
		return nil, fmt.Errorf("%w: Init3 returned %d", ErrInit, ret)
	}
	tess.SetDebugVariable("debug_file", "/dev/null")
	if opts.EngineMode >= 0 {
		tess.SetDebugVariable("tessedit_ocr_engine_mode", strconv.Itoa(opts.EngineMode))
	}
	keys, vars := opts.allVariables()
	for _, k := range keys {
		tess.SetDebugVariable(k, vars[k])
	}
	return &Engine{tess: tess}, nil
}

// Recognize returns the text found in imgBytes, an encoded image.
func (e *Engine) Recognize(ctx context.Context, imgBytes []byte) (string, error) {
	if e.tess == nil {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if len(imgBytes) == 0 {
		return "", fmt.Errorf("%w: image data cannot be empty", ErrRecognition)
	}
	// Clear frees the image and results but keeps the loaded trained data
	defer e.tess.Clear()
	e.tess.SetImageBytes(imgBytes)
	return cleanText(e.tess.GetUTF8Text()), nil
}

func (e *Engine) Close() error {
	if e.tess == nil {
		return nil
	}
	e.tess.End()
	e.tess = nil
	return nil
}
