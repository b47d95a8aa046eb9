//go:build tesseract_pure

package tesswrap

import (
	"context"
	"fmt"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

const Implementation = "tesseract_pure"

// Functions of the Tesseract C API and Leptonica, bound at runtime without cgo
var (
	tessVersion            func() *byte
	tessBaseAPICreate      func() uintptr
	tessBaseAPIDelete      func(handle uintptr)
	tessBaseAPIInit2       func(handle uintptr, datapath unsafe.Pointer, lang *byte, oem int32) int32
	tessBaseAPISetVariable func(handle uintptr, name, value *byte) int32
	tessBaseAPISetImage2   func(handle uintptr, pix uintptr)
	tessBaseAPIGetUTF8Text func(handle uintptr) *byte
	/*
		Free up recognition results and any stored image data,
		without actually freeing any recognition data that would be time-consuming to reload.
	*/
	tessBaseAPIClear func(handle uintptr)
	// Close down tesseract. None of the other API functions may be used afterwards other than Init.
	tessBaseAPIEnd func(handle uintptr)
	tessDeleteText func(text *byte)

	pixReadMem func(data *byte, length uint64) uintptr
	pixDestroy func(pix *uintptr)
)

func init() {
	lib, err := purego.Dlopen("libtesseract.so", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		// try the versioned name shipped without the -dev package
		if lib, err = purego.Dlopen("libtesseract.so.5", purego.RTLD_LAZY|purego.RTLD_GLOBAL); err != nil {
			Initialized = false
			return
		}
	}
	purego.RegisterLibFunc(&tessVersion, lib, "TessVersion")
	purego.RegisterLibFunc(&tessBaseAPICreate, lib, "TessBaseAPICreate")
	purego.RegisterLibFunc(&tessBaseAPIDelete, lib, "TessBaseAPIDelete")
	purego.RegisterLibFunc(&tessBaseAPIInit2, lib, "TessBaseAPIInit2")
	purego.RegisterLibFunc(&tessBaseAPISetVariable, lib, "TessBaseAPISetVariable")
	purego.RegisterLibFunc(&tessBaseAPISetImage2, lib, "TessBaseAPISetImage2")
	purego.RegisterLibFunc(&tessBaseAPIGetUTF8Text, lib, "TessBaseAPIGetUTF8Text")
	purego.RegisterLibFunc(&tessBaseAPIClear, lib, "TessBaseAPIClear")
	purego.RegisterLibFunc(&tessBaseAPIEnd, lib, "TessBaseAPIEnd")
	purego.RegisterLibFunc(&tessDeleteText, lib, "TessDeleteText")
	// Leptonica symbols are resolved through libtesseract's dependencies
	purego.RegisterLibFunc(&pixReadMem, lib, "pixReadMem")
	purego.RegisterLibFunc(&pixDestroy, lib, "pixDestroy")

	Version = unix.BytePtrToString(tessVersion())
	Initialized = true
}

// Engine owns a TessBaseAPI handle created through the C API.
type Engine struct {
	handle uintptr
}

// ListLangs returns the languages with trained data in dataPath
func ListLangs(dataPath string) ([]string, error) {
	return listTrainedData(dataPath)
}

// New creates and initializes a TessBaseAPI handle.
// The engine mode can only be chosen during initialization.
func New(opts Options) (*Engine, error) {
	if !Initialized {
		return nil, fmt.Errorf("%w: libtesseract not loaded", ErrInit)
	}
	langs := opts.LanguageList()
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: no language given", ErrInit)
	}
	lang, err := unix.BytePtrFromString(strings.Join(langs, "+"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	var dataPath unsafe.Pointer
	if opts.DataPath != "" {
		p, err := unix.BytePtrFromString(opts.DataPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInit, err)
		}
		dataPath = unsafe.Pointer(p)
	}

	oem := int32(OEMDefault)
	if opts.EngineMode >= 0 {
		oem = int32(opts.EngineMode)
	}

	handle := tessBaseAPICreate()
	if ret := tessBaseAPIInit2(handle, dataPath, lang, oem); ret != 0 {
		tessBaseAPIDelete(handle)
		return nil, fmt.Errorf("%w: Init2 returned %d", ErrInit, ret)
	}
	e := &Engine{handle: handle}
	// silences warnings on stderr, older versions don't know it
	_ = e.setVariable("debug_file", "/dev/null")
	keys, vars := opts.allVariables()
	for _, k := range keys {
		if err := e.setVariable(k, vars[k]); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) setVariable(name, value string) error {
	n, err := unix.BytePtrFromString(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	v, err := unix.BytePtrFromString(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	if tessBaseAPISetVariable(e.handle, n, v) == 0 {
		return fmt.Errorf("%w: unknown variable %s", ErrInit, name)
	}
	return nil
}

// Recognize returns the text found in imgBytes, an encoded image.
func (e *Engine) Recognize(ctx context.Context, imgBytes []byte) (string, error) {
	if e.handle == 0 {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if len(imgBytes) == 0 {
		return "", fmt.Errorf("%w: image data cannot be empty", ErrRecognition)
	}
	pix := pixReadMem(&imgBytes[0], uint64(len(imgBytes)))
	if pix == 0 {
		return "", fmt.Errorf("%w: not an image", ErrRecognition)
	}
	defer pixDestroy(&pix)
	defer tessBaseAPIClear(e.handle)

	tessBaseAPISetImage2(e.handle, pix)
	text := tessBaseAPIGetUTF8Text(e.handle)
	if text == nil {
		return "", fmt.Errorf("%w: no text returned", ErrRecognition)
	}
	defer tessDeleteText(text)
	return cleanText(unix.BytePtrToString(text)), nil
}

func (e *Engine) Close() error {
	if e.handle == 0 {
		return nil
	}
	tessBaseAPIEnd(e.handle)
	tessBaseAPIDelete(e.handle)
	e.handle = 0
	return nil
}
