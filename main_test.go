package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/testimage"
	"github.com/johbar/ocr-sample/pkg/tesswrap"
)

func testConfig(t *testing.T) *config.OcrConfig {
	t.Helper()
	conf, err := config.NewOcrConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

func writeModels(t *testing.T, langs ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, l := range langs {
		if err := os.WriteFile(filepath.Join(dir, l+".traineddata"), []byte("model"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestParseFlags(t *testing.T) {
	conf := testConfig(t)
	o, err := parseFlags([]string{"--image", "a.png", "--lang", "deu", "--rect", "1,2,3,4", "--json"}, conf, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	want := cliOptions{image: "a.png", models: conf.ModelsDir, lang: "deu", rect: "1,2,3,4", json: true, explicit: true}
	if o != want {
		t.Errorf("want %+v, got %+v", want, o)
	}
	if !o.oneShot() {
		t.Error("want one shot mode")
	}

	o, err = parseFlags(nil, conf, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if o.oneShot() || o.lang != conf.Languages {
		t.Errorf("unexpected options %+v", o)
	}

	if _, err := parseFlags([]string{"--help"}, conf, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("want ErrHelp, got %v", err)
	}
	if _, err := parseFlags([]string{"--image", "a.png", "extra"}, conf, io.Discard); err == nil {
		t.Error("want error for positional arguments")
	}
}

func TestParseFlagsSelectOneShot(t *testing.T) {
	conf := testConfig(t)
	cases := [][]string{
		{"--image", ""},
		{"--image="},
		{"--lang", "eng"},
		{"--models", t.TempDir()},
		{"--rect", "1,2,3,4"},
		{"--json"},
		{"--list-langs"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			o, err := parseFlags(args, conf, io.Discard)
			if err != nil {
				t.Fatal(err)
			}
			if !o.oneShot() {
				t.Errorf("%v should select one shot mode", args)
			}
		})
	}
}

func TestOneShotListLangs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	o := cliOptions{listLangs: true, models: writeModels(t, "eng", "deu")}
	if code := runOneShot(o, testConfig(t), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("want 0, got %d: %s", code, stderr.String())
	}
	if stdout.String() != "deu\neng\n" {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestOneShotFailures(t *testing.T) {
	img := filepath.Join(t.TempDir(), "hello.png")
	if err := os.WriteFile(img, testimage.PNG(testimage.Text("HELLO", 2)), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name  string
		opts  cliOptions
		stdin string
		want  string
	}{
		{"missing model", cliOptions{image: img, lang: "eng"}, "", "ModelNotFound"},
		{"missing file", cliOptions{image: "/does/not/exist.png", lang: "eng"}, "", "DecodeError"},
		{"garbage on stdin", cliOptions{image: "-", lang: "eng"}, "garbage", "DecodeError"},
		{"empty stdin", cliOptions{image: "-", lang: "eng"}, "", "FileNotSelected"},
		{"no image", cliOptions{lang: "eng", explicit: true}, "", "FileNotSelected"},
		{"bad rect", cliOptions{image: img, lang: "eng", rect: "1,2"}, "", "invalid rectangle"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			c.opts.models = writeModels(t)
			code := runOneShot(c.opts, testConfig(t), strings.NewReader(c.stdin), &stdout, &stderr)
			if code != 1 {
				t.Errorf("want exit code 1, got %d", code)
			}
			if stdout.Len() != 0 {
				t.Errorf("nothing should be printed to stdout, got %q", stdout.String())
			}
			if !strings.Contains(stderr.String(), c.want) {
				t.Errorf("want %s in stderr, got %q", c.want, stderr.String())
			}
		})
	}
}

func TestOneShotJsonFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	o := cliOptions{image: "-", lang: "eng", json: true, models: writeModels(t)}
	code := runOneShot(o, testConfig(t), strings.NewReader("garbage"), &stdout, &stderr)
	if code != 1 {
		t.Errorf("want exit code 1, got %d", code)
	}
	var res jsonResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Error == nil || res.Error.Kind != "DecodeError" || res.Text != "" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOneShotTesseract(t *testing.T) {
	if !tesswrap.Initialized {
		t.Skip("tesseract not available")
	}
	conf := testConfig(t)
	if _, err := os.Stat(filepath.Join(conf.ModelsDir, "eng.traineddata")); err != nil {
		t.Skip("no eng.traineddata in", conf.ModelsDir)
	}
	var stdout, stderr bytes.Buffer
	o := cliOptions{image: "-", lang: "eng", models: conf.ModelsDir}
	code := runOneShot(o, conf, bytes.NewReader(testimage.BMP(testimage.Text("HELLO", 4))), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("want 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "HELLO") {
		t.Errorf("want HELLO, got %q", stdout.String())
	}
}
