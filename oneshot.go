package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/modelstore"
	"github.com/johbar/ocr-sample/internal/recognizer"
)

type cliOptions struct {
	image     string
	models    string
	lang      string
	rect      string
	json      bool
	listLangs bool
	// explicit is set when any flag was given, even with an empty value
	explicit bool
}

// oneShot reports whether a single image should be processed instead of starting the service
func (o cliOptions) oneShot() bool {
	return o.explicit || o.image != "" || o.listLangs
}

type jsonError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type jsonResult struct {
	Text  string            `json:"text"`
	Error *jsonError        `json:"error,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

func parseFlags(args []string, conf *config.OcrConfig, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("ocr-sample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: ocr-sample --image <path|-> [options]")
		fmt.Fprintln(stderr, "Without any of these options the HTTP/NATS service is started.")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.image, "image", "", "JPEG, PNG or BMP image to recognize, '-' reads from stdin")
	fs.StringVar(&o.models, "models", conf.ModelsDir, "directory containing <lang>.traineddata files")
	fs.StringVar(&o.lang, "lang", conf.Languages, "languages, separated by '+'")
	fs.StringVar(&o.rect, "rect", "", "restrict recognition to the region x,y,w,h")
	fs.BoolVar(&o.json, "json", false, "print the result as JSON")
	fs.BoolVar(&o.listLangs, "list-langs", false, "list the languages available in the models directory")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	// every flag belongs to one-shot mode
	fs.Visit(func(*flag.Flag) { o.explicit = true })
	return o, nil
}

// runOneShot recognizes a single image and prints the text to stdout.
// It returns the process' exit code.
func runOneShot(o cliOptions, conf *config.OcrConfig, stdin io.Reader, stdout, stderr io.Writer) int {
	level := max(conf.LogLevel, slog.LevelWarn)
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level, AddSource: conf.Debug}))
	store := modelstore.New(o.models)

	if o.listLangs {
		langs, err := store.Languages()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, l := range langs {
			fmt.Fprintln(stdout, l)
		}
		return 0
	}

	var region *recognizer.Rect
	if o.rect != "" {
		var err error
		if region, err = recognizer.ParseRect(o.rect); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	src := recognizer.FromPath(o.image)
	if o.image == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if len(data) == 0 {
			data = nil
		}
		src = recognizer.FromBytes(data, "stdin")
	}

	rec := recognizer.New(conf, log)
	defer rec.Close()
	res := rec.Recognize(context.Background(), src, store, o.lang, region)

	if o.json {
		out := jsonResult{Text: res.Text, Meta: res.Meta}
		if !res.OK() {
			out.Error = &jsonError{Kind: res.Err.Kind.String(), Message: res.Err.Msg}
		}
		if err := json.NewEncoder(stdout).Encode(out); err != nil {
			log.Error("Could not write to output", "err", err)
			return 1
		}
	} else if res.OK() {
		fmt.Fprintln(stdout, res.Text)
	}
	if !res.OK() {
		if !o.json {
			fmt.Fprintln(stderr, res.Message())
		}
		return 1
	}
	return 0
}
