//go:build embed_nats

package nats

import (
	"errors"
	"time"

	"github.com/johbar/ocr-sample/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = true

// ConnectToEmbeddedNatsServer starts an in-process NATS server with JetStream
// enabled and returns a connection to it.
func ConnectToEmbeddedNatsServer(conf *config.OcrConfig) (*nats.Conn, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "ocr-sample",
		JetStream:  true,
		MaxPayload: conf.NatsMaxPayload,
		DontListen: !conf.ExposeNats,
		Host:       conf.NatsHost,
		Port:       conf.NatsPort,
		StoreDir:   conf.NatsStoreDir,
	})
	if err != nil {
		return nil, err
	}
	ns.ConfigureLogger()
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS not ready")
	}
	return nats.Connect("", nats.Name("ocr-sample"), nats.InProcessServer(ns))
}
