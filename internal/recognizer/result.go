package recognizer

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Kind classifies why a recognition failed. Kind implements error, so
// errors.Is(err, recognizer.ModelNotFound) works on any *Error.
type Kind int

const (
	// FileNotSelected means no image was supplied at all
	FileNotSelected Kind = iota + 1
	// DecodeError means the image bytes are not a supported raster format
	DecodeError
	// ModelNotFound means trained data for a requested language is missing
	ModelNotFound
	// EngineInitError means Tesseract could not be initialized
	EngineInitError
	// RecognitionError means Tesseract failed while extracting text
	RecognitionError
)

var kindNames = map[Kind]string{
	FileNotSelected:  "FileNotSelected",
	DecodeError:      "DecodeError",
	ModelNotFound:    "ModelNotFound",
	EngineInitError:  "EngineInitError",
	RecognitionError: "RecognitionError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) Error() string {
	return k.String()
}

// Error is a failed recognition
type Error struct {
	Kind Kind
	// Msg is a human readable description
	Msg string
	// Err is the underlying cause, if any
	Err error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of err or 0 if err is not a recognition error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return 0
}

// Result holds either the recognized text or an error, never both.
type Result struct {
	// Text is the recognized text; it may be empty on success
	Text string
	// Err is set if recognition failed
	Err *Error
	// Meta describes the decoded image; it is informational and set whenever decoding succeeded
	Meta map[string]string
}

// Success returns a successful Result
func Success(text string) Result {
	return Result{Text: text}
}

// Failure returns a failed Result. The text is always empty.
func Failure(err *Error) Result {
	return Result{Err: err}
}

// OK reports whether recognition succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Message returns the text on success or the error message on failure
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Text
}

// Rect is a region in pixels with its origin in the upper-left corner of the image
type Rect struct {
	X, Y, W, H int
}

// ParseRect parses "x,y,w,h"
func ParseRect(s string) (*Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid rectangle '%s': want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid rectangle '%s': %w", s, err)
		}
		v[i] = n
	}
	return &Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.W, r.H)
}

// clip returns the part of r within bounds. A nil Rect means the whole image.
func (r *Rect) clip(bounds image.Rectangle) (image.Rectangle, error) {
	if r == nil {
		return bounds, nil
	}
	if r.W <= 0 || r.H <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid region %v: width and height must be positive", *r)
	}
	min := bounds.Min.Add(image.Pt(r.X, r.Y))
	clipped := image.Rectangle{Min: min, Max: min.Add(image.Pt(r.W, r.H))}.Intersect(bounds)
	if clipped.Empty() {
		return image.Rectangle{}, fmt.Errorf("region %v lies outside of the image %v", *r, bounds.Size())
	}
	return clipped, nil
}
