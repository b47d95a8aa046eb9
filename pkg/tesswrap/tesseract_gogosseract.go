//go:build tesseract_wasm

package tesswrap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danlock/gogosseract"
)

const Implementation = "tesseract_wasm"

// Engine runs Tesseract compiled to WASM.
// Only a single language is supported; page segmentation mode, engine mode
// and variables are not passed on.
type Engine struct {
	tess *gogosseract.Tesseract
}

// ListLangs returns the languages with trained data in dataPath
func ListLangs(dataPath string) ([]string, error) {
	return listTrainedData(dataPath)
}

// New compiles the Tesseract WASM module and loads the trained data for
// opts.Languages from opts.DataPath.
func New(opts Options) (*Engine, error) {
	langs := opts.LanguageList()
	if len(langs) != 1 {
		return nil, fmt.Errorf("%w: exactly one language is supported, got %v", ErrInit, langs)
	}
	trainingDataFile, err := os.Open(filepath.Join(opts.DataPath, langs[0]+".traineddata"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	defer trainingDataFile.Close()
	cfg := gogosseract.Config{
		Language:     langs[0],
		TrainingData: trainingDataFile,
	}
	// While Tesseract's output is very useful for debugging, you have the option to silence or redirect it
	cfg.Stderr = io.Discard
	cfg.Stdout = io.Discard
	// Compile the Tesseract WASM and run it, loading in the TrainingData
	tess, err := gogosseract.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	return &Engine{tess: tess}, nil
}

// Recognize returns the text found in imgBytes, an encoded image.
func (e *Engine) Recognize(ctx context.Context, imgBytes []byte) (string, error) {
	if e.tess == nil {
		return "", ErrClosed
	}
	if err := e.tess.LoadImage(ctx, bytes.NewReader(imgBytes), gogosseract.LoadImageOptions{}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	text, err := e.tess.GetText(ctx, func(progress int32) {})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	return cleanText(text), nil
}

func (e *Engine) Close() error {
	if e.tess == nil {
		return nil
	}
	err := e.tess.Close(context.Background())
	e.tess = nil
	return err
}
