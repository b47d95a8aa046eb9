package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/johbar/ocr-sample/pkg/tesswrap"
	"go-simpler.org/env"
)

// OcrConfig represents the configuration of this service
type OcrConfig struct {
	// Name of the object store in NATS caching recognized texts. Default: OCR_RESULTS
	Bucket string `env:"OCR_BUCKET" default:"OCR_RESULTS"`
	// Add source info to log statement. Default: false
	Debug bool `env:"OCR_DEBUG" default:"false"`
	// Join words split by a hyphen at the end of a line. Default: false
	Dehyphenate bool `env:"OCR_DEHYPHENATE" default:"false"`
	// Start an embedded NATS server (needs build tag embed_nats). Default: false
	EmbedNats bool `env:"OCR_EMBED_NATS" default:"false"`
	// Tesseract's OCR engine mode (--oem). Default: 3
	EngineMode int `env:"OCR_ENGINE_MODE" default:"3"`
	// wether to expose embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"OCR_EXPOSE_NATS" default:"false"`
	// If true the service will exit with an error if the JetStream object store can't be created
	FailWithoutJetstream bool `env:"OCR_FAIL_WITHOUT_JS" default:"false"`
	// Default language(s) as 3-letter codes, separated by `+`. Default: eng
	Languages string `env:"OCR_LANG" default:"eng"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"OCR_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size an image may have
	MaxFileSize      string `env:"OCR_MAX_FILE_SIZE" default:"50MiB"`
	MaxFileSizeBytes uint64
	// Directory containing <lang>.traineddata files
	ModelsDir string `env:"OCR_MODELS_DIR" default:"/usr/share/tesseract-ocr/5/tessdata"`
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"OCR_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server storage location
	NatsStoreDir string `env:"OCR_NATS_STORE_DIR"`
	// embedded NATS server host/ip address, if exposed. Default: localhost
	NatsHost string `env:"OCR_NATS_HOST" default:"localhost"`
	// embedded NATS server port, if exposed. Default: 4222
	NatsPort int `env:"OCR_NATS_PORT" default:"4222"`
	// External NATS URL, e.g. nats://localhost:4222
	NatsUrl string `env:"OCR_NATS_URL"`
	// Timeout for the external NATS connection
	NatsTimeout time.Duration `env:"OCR_NATS_TIMEOUT" default:"15s"`
	// NatsConnectRetries is the number of attempts to connect to external NATS server(s)
	NatsConnectRetries int `env:"OCR_NATS_CONNECT_RETRIES" default:"10"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"OCR_NO_HTTP" default:"false"`
	// Tesseract's page segmentation mode (--psm). Default: 3
	PageSegMode int `env:"OCR_PAGE_SEG_MODE" default:"3"`
	// if true, dehyphenated text will be compacted by replacing newlines with whitespace
	RemoveNewlines bool `env:"OCR_REMOVE_NEWLINES" default:"false"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"OCR_REPLICAS" default:"1"`
	// Deadline for a single recognition requested via HTTP or NATS
	RequestTimeout time.Duration `env:"OCR_REQUEST_TIMEOUT" default:"60s"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"OCR_HOST_PORT" default:":8080"`
	// Additional Tesseract variables as comma separated key=value pairs
	VariablesStr string `env:"OCR_VARIABLES"`
	Variables    map[string]string
}

// NewOcrConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewOcrConfigFromEnv() (*OcrConfig, error) {
	var cfg OcrConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return nil, fmt.Errorf("parsing log level from env: %w", err)
	}
	maxSize, err := humanize.ParseBytes(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("parsing max file size from env: %w", err)
	}
	cfg.MaxFileSizeBytes = maxSize
	cfg.Variables, err = tesswrap.ParseVariables(cfg.VariablesStr)
	if err != nil {
		return nil, fmt.Errorf("parsing tesseract variables from env: %w", err)
	}
	return &cfg, nil
}

// EngineOptions returns the engine configuration for the given models dir and languages
func (c *OcrConfig) EngineOptions(modelsDir, langs string) tesswrap.Options {
	return tesswrap.Options{
		DataPath:    modelsDir,
		Languages:   langs,
		PageSegMode: c.PageSegMode,
		EngineMode:  c.EngineMode,
		Variables:   c.Variables,
	}
}
