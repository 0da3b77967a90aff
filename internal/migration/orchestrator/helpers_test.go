package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/kubernetes/fake"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/platform/s3"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestConfig() *config.Config {
	cfg := &config.Config{
		Namespace: "apps",
		Release:   "shop",
		ToVersion: "1.4.2",
		Migration: config.MigrationConfig{
			Enabled:        true,
			FromVersion:    "1.0.0",
			MarketplaceURL: "http://marketplace:5002",
		},
		Database: config.DatabaseConfig{Host: "postgres", Name: "shop", CredentialsSecret: "shop-db"},
		Execution: config.ExecutionConfig{
			ServiceAccount: "shop-migrator",
			ImageRegistry:  "ghcr.io/acme",
			Tag:            "1.4.2",
			CreateRBAC:     true,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestOrchestrator(cfg *config.Config, opts ...Option) (*Orchestrator, *fake.Clientset) {
	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	clientset := fake.NewSimpleClientset()
	opts = append([]Option{WithHolderIdentity("test-holder"), WithClock(func() time.Time { return testNow })}, opts...)
	return New(k8s.NewFromClientset(clientset), cfg, opts...), clientset
}

type fakeBucket struct {
	mu      sync.Mutex
	opts    s3.Options
	buckets []string
	objects []string
	err     error
	listErr error
	lists   []string
}

func (b *fakeBucket) factory(_ context.Context, opts s3.Options) (ObjectStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = opts
	return b, nil
}

func (b *fakeBucket) EnsureBucket(_ context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.buckets = append(b.buckets, bucket)
	return nil
}

func (b *fakeBucket) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists = append(b.lists, bucket+"/"+prefix)
	if b.listErr != nil {
		return nil, b.listErr
	}
	var keys []string
	for _, key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
