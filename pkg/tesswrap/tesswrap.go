/*
Package tesswrap is a rather limited wrapper for Tesseract OCR v5.
It defaults to using the CLI.
Alternative interfaces/implementations can be used by supplying build tags:
gosseract, tesseract_lib or tesseract_wasm.

Every implementation provides an Engine that is initialized once with a
tessdata directory and a set of languages and can then be used for any number
of recognitions. An Engine is not safe for concurrent use.
*/
package tesswrap

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	// Initialized indicates if this package is usable
	Initialized bool = true
	Version     string

	// ErrInit is wrapped by every error returned from New
	ErrInit = errors.New("tesseract could not be initialized")
	// ErrRecognition is wrapped by every error returned from Engine.Recognize
	ErrRecognition = errors.New("tesseract failed")
	// ErrClosed is returned when an Engine is used after Close
	ErrClosed = errors.New("engine closed")
)

// Tesseract's defaults
const (
	PSMAuto    = 3
	OEMDefault = 3
)

// Options configures an Engine
type Options struct {
	// DataPath is the tessdata directory holding <lang>.traineddata files
	DataPath string
	// Languages are 3-letter codes separated by '+', e.g. eng+deu
	Languages string
	// PageSegMode is Tesseract's page segmentation mode (--psm)
	PageSegMode int
	// EngineMode is Tesseract's OCR engine mode (--oem); not every implementation honors it
	EngineMode int
	// Variables are passed to Tesseract's SetVariable after initialization
	Variables map[string]string
}

// LanguageList splits Languages into its components
func (o Options) LanguageList() []string {
	var langs []string
	for _, l := range strings.Split(o.Languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// allVariables merges the page segmentation mode into the user supplied
// variables. Keys are returned sorted, so engines are configured reproducibly.
func (o Options) allVariables() (keys []string, vars map[string]string) {
	vars = make(map[string]string, len(o.Variables)+1)
	for k, v := range o.Variables {
		vars[k] = v
	}
	if _, ok := vars["tessedit_pageseg_mode"]; !ok && o.PageSegMode > 0 {
		vars["tessedit_pageseg_mode"] = strconv.Itoa(o.PageSegMode)
	}
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, vars
}

// ParseVariables parses a list of key=value pairs separated by commas.
// Empty input returns an empty map.
func ParseVariables(s string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errors.New("malformed tesseract variable: " + pair)
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return vars, nil
}

// blankImage is recognized once during initialization by the library based
// implementations, forcing them to load the trained data up front.
var blankImage = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}()

// cleanText removes the trailing page separator and surrounding blank lines Tesseract emits
func cleanText(s string) string {
	return strings.Trim(s, "\f\n\r\t ")
}

// listTrainedData returns the language codes of all .traineddata files in dataPath
func listTrainedData(dataPath string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dataPath, "*.traineddata"))
	if err != nil {
		return nil, err
	}
	langs := make([]string, 0, len(matches))
	for _, m := range matches {
		langs = append(langs, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
	}
	return langs, nil
}
