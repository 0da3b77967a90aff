package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/stagehand/internal/platform/s3"
	"github.com/imamik/stagehand/internal/util/naming"
)

// ObjectClient is the subset of the object storage client the bucket backend uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
}

// Bucket stores files as objects under the run's prefix.
type Bucket struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewBucket returns a backend storing the run's files in bucket.
func NewBucket(client ObjectClient, bucket, runID string) *Bucket {
	return &Bucket{client: client, bucket: bucket, prefix: naming.ArtifactPrefix(runID)}
}

func (b *Bucket) key(key string) string {
	return b.prefix + strings.TrimPrefix(key, "/")
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	return b.client.PutObject(ctx, b.bucket, b.key(key), data)
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.GetObject(ctx, b.bucket, b.key(key))
	if errors.Is(err, s3.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	return b.client.ObjectExists(ctx, b.bucket, b.key(key))
}
