// Package objectstore stores documents as JSON objects in an S3-compatible
// bucket (MinIO). Object keys are <collection>/<id>.json.
//
// Merge writes read the stored object and write it back; concurrent merges on
// the same document are last-write-wins.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"account_gateway/internal/docstore"
	"account_gateway/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentTypeJSON = "application/json"

var errNoSuchKey = errors.New("no such key")

// objects is the bucket access Store needs.
type objects interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, body []byte) error
	remove(ctx context.Context, key string) error
}

// Store implements docstore.Store on a bucket.
type Store struct {
	bucket objects
}

var _ docstore.Store = (*Store)(nil)

// New connects to MinIO and makes sure the configured bucket exists.
func New(ctx context.Context, cfg config.MinIOConfig) (*Store, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	bucket := cfg.GetMinIOBucket()
	if err := ensureBucketExists(ctx, client, bucket); err != nil {
		return nil, err
	}
	return &Store{bucket: &minioBucket{client: client, name: bucket}}, nil
}

func ensureBucketExists(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func objectKey(collection, id string) string {
	return url.PathEscape(collection) + "/" + url.PathEscape(id) + ".json"
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}

	data, found, err := s.read(ctx, collection, id)
	if err != nil {
		return docstore.Document{}, err
	}
	if !found {
		return docstore.Document{ID: id}, nil
	}
	return docstore.Document{ID: id, Exists: true, Data: data}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, opts docstore.SetOptions) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}

	var current map[string]any
	if opts.Merge {
		existing, _, err := s.read(ctx, collection, id)
		if err != nil {
			return err
		}
		current = existing
	}

	body, err := json.Marshal(docstore.Apply(current, data, opts))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if err := s.bucket.put(ctx, objectKey(collection, id), body); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}
	if err := s.bucket.remove(ctx, objectKey(collection, id)); err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, collection, id string) (map[string]any, bool, error) {
	body, err := s.bucket.get(ctx, objectKey(collection, id))
	if errors.Is(err, errNoSuchKey) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return data, true, nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return body, nil
}

func (b *minioBucket) put(ctx context.Context, key string, body []byte) error {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentTypeJSON,
	})
	return err
}

// RemoveObject succeeds for missing keys.
func (b *minioBucket) remove(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{})
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errNoSuchKey
	}
	return err
}
