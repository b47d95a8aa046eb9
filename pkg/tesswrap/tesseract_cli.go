//go:build !gosseract && !tesseract_lib && !tesseract_wasm && !tesseract_pure

// This is the default implementation
package tesswrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

const Implementation = "cli"

func init() {
	if _, err := exec.LookPath("tesseract"); err != nil {
		Initialized = false
		return
	}
	if out, err := exec.Command("tesseract", "--version").Output(); err == nil {
		// first line is something like 'tesseract 5.3.0'
		first, _, _ := strings.Cut(string(out), "\n")
		Version = strings.TrimSpace(strings.TrimPrefix(first, "tesseract"))
	}
}

// Engine runs the tesseract executable once per recognition.
type Engine struct {
	opts   Options
	args   []string
	closed bool
}

// ListLangs returns the languages tesseract finds in dataPath
func ListLangs(dataPath string) ([]string, error) {
	args := []string{"--list-langs"}
	if dataPath != "" {
		args = append([]string{"--tessdata-dir", dataPath}, args...)
	}
	output, err := exec.Command("tesseract", args...).Output()
	if err != nil {
		return nil, err
	}
	var langs []string
	// first line is a heading
	for _, line := range strings.Split(string(output), "\n")[1:] {
		if line = strings.TrimSpace(line); line != "" {
			langs = append(langs, line)
		}
	}
	return langs, nil
}

// New checks that tesseract is installed and that all configured languages
// are available in opts.DataPath.
func New(opts Options) (*Engine, error) {
	if !Initialized {
		return nil, fmt.Errorf("%w: tesseract is not in PATH", ErrInit)
	}
	langs := opts.LanguageList()
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: no language given", ErrInit)
	}
	available, err := ListLangs(opts.DataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listing languages: %w", ErrInit, err)
	}
	for _, l := range langs {
		if !slices.Contains(available, l) {
			return nil, fmt.Errorf("%w: '%s' is not among the installed languages %v", ErrInit, l, available)
		}
	}
	args := []string{}
	if opts.DataPath != "" {
		args = append(args, "--tessdata-dir", opts.DataPath)
	}
	args = append(args, "-l", strings.Join(langs, "+"))
	if opts.EngineMode >= 0 {
		args = append(args, "--oem", strconv.Itoa(opts.EngineMode))
	}
	keys, vars := opts.allVariables()
	for _, k := range keys {
		if k == "tessedit_pageseg_mode" {
			args = append(args, "--psm", vars[k])
			continue
		}
		args = append(args, "-c", k+"="+vars[k])
	}
	// read from stdin, write to stdout
	args = append(args, "-", "-")
	return &Engine{opts: opts, args: args}, nil
}

// Recognize returns the text found in imgBytes, an encoded image.
func (e *Engine) Recognize(ctx context.Context, imgBytes []byte) (string, error) {
	if e.closed {
		return "", ErrClosed
	}
	if len(imgBytes) == 0 {
		return "", fmt.Errorf("%w: image data cannot be empty", ErrRecognition)
	}
	cmd := exec.CommandContext(ctx, "tesseract", e.args...)
	cmd.Stdin = bytes.NewReader(imgBytes)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	result, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", ErrRecognition, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	return cleanText(string(result)), nil
}

func (e *Engine) Close() error {
	e.closed = true
	return nil
}
