package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Entry is a cached recognition result
type Entry struct {
	Text     []byte
	Metadata map[string]string
}

// Cache stores recognized texts. Get returns nil and no error if there is no entry for key.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, key string, e Entry) error
}

// Key identifies the recognition of a region of an image in the given languages.
// An empty region means the whole image.
func Key(image []byte, langs, region string) string {
	sum := sha256.Sum256(image)
	if region == "" {
		region = "full"
	}
	region = strings.ReplaceAll(region, ",", "_")
	return hex.EncodeToString(sum[:]) + "." + langs + "." + region
}

type NopCache struct{}

func (c *NopCache) Get(_ context.Context, _ string) (*Entry, error) {
	return nil, nil
}

func (c *NopCache) Save(_ context.Context, _ string, _ Entry) error {
	return nil
}
