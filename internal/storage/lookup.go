package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/kingrea/configcrunch/document"
)

const s3Scheme = "s3://"

// LookupPath is one parsed repository location.
type LookupPath struct {
	Dir    string
	Bucket string
	Prefix string
}

// IsS3 reports whether the lookup path names a bucket.
func (p LookupPath) IsS3() bool { return p.Bucket != "" }

func (p LookupPath) String() string {
	if p.IsS3() {
		return (&S3Source{Bucket: p.Bucket, Prefix: p.Prefix}).String()
	}
	return p.Dir
}

// ParseLookupPath accepts s3://bucket/prefix or a directory. Relative
// directories are resolved against base.
func ParseLookupPath(base, raw string) (LookupPath, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LookupPath{}, fmt.Errorf("storage: empty lookup path")
	}
	if strings.HasPrefix(trimmed, s3Scheme) {
		bucket, prefix, err := splitS3URL(trimmed)
		if err != nil {
			return LookupPath{}, err
		}
		return LookupPath{Bucket: bucket, Prefix: prefix}, nil
	}
	if !filepath.IsAbs(trimmed) {
		trimmed = filepath.Join(base, trimmed)
	}
	return LookupPath{Dir: filepath.Clean(trimmed)}, nil
}

// ClientFactory creates the S3 client shared by every bucket lookup path.
type ClientFactory func(ctx context.Context, cfg S3ClientConfig) (ObjectGetter, error)

func defaultClientFactory(ctx context.Context, cfg S3ClientConfig) (ObjectGetter, error) {
	return NewS3Client(ctx, cfg)
}

// Sources builds document sources for raw lookup paths, in order. A single
// S3 client is created lazily the first time a bucket is seen; pass a nil
// factory to use NewS3Client.
func Sources(ctx context.Context, base string, raw []string, cfg S3ClientConfig, factory ClientFactory) ([]document.Source, error) {
	if factory == nil {
		factory = defaultClientFactory
	}
	var client ObjectGetter
	sources := make([]document.Source, 0, len(raw))
	for _, entry := range raw {
		lp, err := ParseLookupPath(base, entry)
		if err != nil {
			return nil, err
		}
		if !lp.IsS3() {
			sources = append(sources, document.DirSource{Root: lp.Dir})
			continue
		}
		if client == nil {
			client, err = factory(ctx, cfg)
			if err != nil {
				return nil, err
			}
			log.WithField("endpoint", cfg.Endpoint).Debug("initialized s3 client")
		}
		sources = append(sources, &S3Source{Client: client, Bucket: lp.Bucket, Prefix: lp.Prefix})
	}
	return sources, nil
}
