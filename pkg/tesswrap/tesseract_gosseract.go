//go:build gosseract

package tesswrap

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

const Implementation = "gosseract"

func init() {
	Version = gosseract.Version()
	Initialized = true
}

// Engine keeps one initialized gosseract client.
type Engine struct {
	goss *gosseract.Client
}

// ListLangs returns the languages with trained data in dataPath
func ListLangs(dataPath string) ([]string, error) {
	if dataPath == "" {
		return gosseract.GetAvailableLanguages()
	}
	return listTrainedData(dataPath)
}

// New creates a client and initializes it by recognizing a blank image.
// gosseract always uses Tesseract's default engine mode.
func New(opts Options) (*Engine, error) {
	langs := opts.LanguageList()
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: no language given", ErrInit)
	}
	goss := gosseract.NewClient()
	if opts.DataPath != "" {
		if err := goss.SetTessdataPrefix(opts.DataPath); err != nil {
			goss.Close()
			return nil, fmt.Errorf("%w: %w", ErrInit, err)
		}
	}
	if err := goss.SetLanguage(langs...); err != nil {
		goss.Close()
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	goss.DisableOutput()
	keys, vars := opts.allVariables()
	for _, k := range keys {
		goss.SetVariable(gosseract.SettableVariable(k), vars[k])
	}
	goss.Trim = true
	if err := goss.SetImageFromBytes(blankImage); err != nil {
		goss.Close()
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	if _, err := goss.Text(); err != nil {
		goss.Close()
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	return &Engine{goss: goss}, nil
}

// Recognize returns the text found in imgBytes, an encoded image.
func (e *Engine) Recognize(ctx context.Context, imgBytes []byte) (string, error) {
	if e.goss == nil {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if err := e.goss.SetImageFromBytes(imgBytes); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	txt, err := e.goss.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	return cleanText(txt), nil
}

func (e *Engine) Close() error {
	if e.goss == nil {
		return nil
	}
	err := e.goss.Close()
	e.goss = nil
	return err
}
