package tesswrap

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/johbar/ocr-sample/internal/testimage"
)

// engOptions returns options for English if tesseract and its English model are installed
func engOptions(t *testing.T) Options {
	t.Helper()
	if !Initialized {
		t.Skip("Tesseract not available")
	}
	dataPath := os.Getenv("OCR_MODELS_DIR")
	langs, err := ListLangs(dataPath)
	if err != nil || !slices.Contains(langs, "eng") {
		t.Skip("English trained data not available")
	}
	return Options{DataPath: dataPath, Languages: "eng", PageSegMode: PSMAuto, EngineMode: OEMDefault}
}

func TestImageToText(t *testing.T) {
	e, err := New(engOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	txt, err := e.Recognize(context.Background(), testimage.PNG(testimage.Text("HELLO", 4)))
	if err != nil {
		t.Fatal(err)
	}
	if len(txt) == 0 {
		t.Fatal("zero-length content")
	}
	if !strings.Contains(strings.ToUpper(txt), "HELLO") {
		t.Errorf("want text containing HELLO, got %q", txt)
	}
	t.Log(txt)
}

func TestEngineIsReusable(t *testing.T) {
	e, err := New(engOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	img := testimage.PNG(testimage.Text("REUSE", 4))
	first, err := e.Recognize(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Recognize(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("same engine returned different texts: %q != %q", first, second)
	}
}

func TestNewUnknownLanguage(t *testing.T) {
	if !Initialized {
		t.Skip("Tesseract not available")
	}
	_, err := New(Options{DataPath: t.TempDir(), Languages: "xyz", EngineMode: OEMDefault})
	if !errors.Is(err, ErrInit) {
		t.Errorf("want ErrInit, got %v", err)
	}
}

func TestNewNoLanguage(t *testing.T) {
	_, err := New(Options{Languages: " + "})
	if !errors.Is(err, ErrInit) {
		t.Errorf("want ErrInit, got %v", err)
	}
}

func TestRecognizeAfterClose(t *testing.T) {
	e, err := New(engOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	e.Close()
	if _, err := e.Recognize(context.Background(), blankImage); !errors.Is(err, ErrClosed) {
		t.Errorf("want ErrClosed, got %v", err)
	}
}

func TestBlankImage(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(blankImage))
	if err != nil {
		t.Fatalf("blank image is not a PNG: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("got %T, want *image.Gray", img)
	}
	if gray.Bounds().Dx() != 32 || gray.Bounds().Dy() != 32 {
		t.Errorf("got bounds %v", gray.Bounds())
	}
	for i, px := range gray.Pix {
		if px != 0xff {
			t.Fatalf("pixel %d is %#x, want white", i, px)
		}
	}
}

func TestParseVariables(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", in: "", want: map[string]string{}},
		{name: "single", in: "tessedit_char_whitelist=ABC", want: map[string]string{"tessedit_char_whitelist": "ABC"}},
		{name: "spaces", in: " a = 1 , b=2,", want: map[string]string{"a": "1", "b": "2"}},
		{name: "empty value", in: "a=", want: map[string]string{"a": ""}},
		{name: "no equals", in: "a", wantErr: true},
		{name: "no key", in: "=1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVariables(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVariables() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseVariables() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllVariables(t *testing.T) {
	o := Options{PageSegMode: 6, Variables: map[string]string{"b": "2", "a": "1"}}
	keys, vars := o.allVariables()
	if want := []string{"a", "b", "tessedit_pageseg_mode"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if vars["tessedit_pageseg_mode"] != "6" {
		t.Errorf("want psm 6, got %q", vars["tessedit_pageseg_mode"])
	}
	if _, ok := o.Variables["tessedit_pageseg_mode"]; ok {
		t.Error("allVariables must not modify the options")
	}
	// an explicit variable wins
	o.Variables["tessedit_pageseg_mode"] = "7"
	_, vars = o.allVariables()
	if vars["tessedit_pageseg_mode"] != "7" {
		t.Errorf("want psm 7, got %q", vars["tessedit_pageseg_mode"])
	}
}

func TestLanguageList(t *testing.T) {
	got := Options{Languages: "eng+ deu++"}.LanguageList()
	if want := []string{"eng", "deu"}; !reflect.DeepEqual(got, want) {
		t.Errorf("LanguageList() = %v, want %v", got, want)
	}
}

func TestListTrainedData(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"eng.traineddata", "deu.traineddata", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	langs, err := listTrainedData(dir)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(langs)
	if want := []string{"deu", "eng"}; !reflect.DeepEqual(langs, want) {
		t.Errorf("listTrainedData() = %v, want %v", langs, want)
	}
}

func TestCleanText(t *testing.T) {
	if got := cleanText("\nHELLO\n\f"); got != "HELLO" {
		t.Errorf("cleanText() = %q", got)
	}
	if got := cleanText("\f"); got != "" {
		t.Errorf("cleanText() = %q", got)
	}
}
