// Package nats connects the service to an external or embedded NATS server.
package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/johbar/ocr-sample/internal/config"
	"github.com/nats-io/nats.go"
)

var errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")

// SetupNatsConnection connects the service to NATS. It starts an embedded
// server if conf.EmbedNats is set, otherwise it dials conf.NatsUrl with
// retries. Without either it returns a nil connection and no error.
func SetupNatsConnection(conf *config.OcrConfig, log *slog.Logger) (*nats.Conn, error) {
	if conf.EmbedNats {
		log.Info("Starting embedded NATS server", "exposed", conf.ExposeNats, "storeDir", conf.NatsStoreDir)
		return ConnectToEmbeddedNatsServer(conf)
	}
	if conf.NatsUrl == "" {
		return nil, nil
	}
	var err error
	for attempts := 1; ; attempts++ {
		var nc *nats.Conn
		log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds(), "count", attempts)
		nc, err = nats.Connect(conf.NatsUrl, nats.Name("ocr-sample"), nats.Timeout(conf.NatsTimeout))
		if err == nil {
			return nc, nil
		}
		log.Error("Connecting to NATS failed",
			"url", conf.NatsUrl,
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		if attempts > conf.NatsConnectRetries {
			break
		}
		time.Sleep(time.Second)
	}
	log.Error("Connecting to NATS failed. Retry count exceeded", "err", err, "maxRetries", conf.NatsConnectRetries)
	return nil, err
}
