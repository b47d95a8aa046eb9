package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johbar/ocr-sample/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type ObjectStoreCache struct {
	jetstream.ObjectStore
	nc *nats.Conn
	js jetstream.JetStream
}

// New creates or updates the bucket configured in conf.
// If the bucket can't be created and conf.FailWithoutJetstream is false, a NopCache is returned instead.
func New(conf *config.OcrConfig, log *slog.Logger, nc *nats.Conn) (Cache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if nc == nil {
		return nil, errors.New("no connection to NATS")
	}
	js, err := setupJetstream(conf, nc, log)
	if err != nil {
		if conf.FailWithoutJetstream {
			return nil, err
		}
		log.Warn("JetStream not available. Results will not be cached", "err", err)
		return &NopCache{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Storage:     jetstream.FileStorage,
		Bucket:      conf.Bucket,
		Description: "Texts recognized by ocr-sample",
		Compression: true,
		Replicas:    conf.Replicas,
	})
	if err != nil {
		log.Error("Creating NATS object store failed", "err", err)
		if conf.FailWithoutJetstream {
			return nil, fmt.Errorf("initializing NATS object store: %w", err)
		}
		return &NopCache{}, nil
	}
	log.Info("NATS object store initialized.", "bucket", conf.Bucket)
	return &ObjectStoreCache{store, nc, js}, nil
}

func setupJetstream(conf *config.OcrConfig, nc *nats.Conn, log *slog.Logger) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		log.Error("Error when initializing NATS JetStream", "err", err)
		return nil, err
	}

	for attempts := 0; attempts <= conf.NatsConnectRetries; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err = js.AccountInfo(ctx)
		cancel()
		if err == nil {
			return js, nil
		}
		if errors.Is(err, jetstream.ErrJetStreamNotEnabled) || errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount) {
			return nil, err
		}
		log.Error("NATS JetStream check failed. Is JetStream enabled in external NATS server(s)?",
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("retry count exceeded: %w", err)
}

func (store *ObjectStoreCache) Get(ctx context.Context, key string) (*Entry, error) {
	info, err := store.GetInfo(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving object metadata for %s: %w", key, err)
	}
	text, err := store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("retrieving object %s from object store: %w", key, err)
	}
	return &Entry{Text: text, Metadata: info.Metadata}, nil
}

func (store *ObjectStoreCache) Save(ctx context.Context, key string, e Entry) error {
	m := jetstream.ObjectMeta{Name: key, Metadata: e.Metadata}
	_, err := store.Put(ctx, m, bytes.NewReader(e.Text))
	return err
}
