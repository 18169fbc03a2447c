package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/logging"
)

// S3Store implements BlobStore over aws-sdk-go-v2/service/s3, grounded on
// the teacher's cmd/seed-geodata S3 download logic. Region is always
// eu-central-1 per the object store contract (§6).
type S3Store struct {
	client *s3.Client
}

// NewS3Store loads the default AWS config (environment credentials,
// eu-central-1 region) and returns a ready S3Store.
func NewS3Store(ctx context.Context) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("eu-central-1"))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg)}, nil
}

func requestPayer(opts GetOptions) types.RequestPayer {
	if opts.RequesterPays {
		return types.RequestPayerRequester
	}
	return ""
}

// List enumerates objects under prefix, requester-pays aware, lazily
// paginating.
func (s *S3Store) List(ctx context.Context, bucket, prefix string, opts GetOptions) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket:        aws.String(bucket),
			Prefix:        aws.String(prefix),
			RequestPayer:  requestPayer(opts),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(ObjectInfo{}, cfsierrors.BlobTransient(fmt.Errorf("listing s3://%s/%s: %w", bucket, prefix, err)))
				return
			}
			for _, obj := range page.Contents {
				info := ObjectInfo{Key: aws.ToString(obj.Key)}
				if obj.Size != nil {
					info.Size = *obj.Size
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// Get fetches the full object body into memory.
func (s *S3Store) Get(ctx context.Context, bucket, key string, opts GetOptions) ([]byte, error) {
	var body []byte
	err := logging.TimeOperation(ctx, "blobstore.Get "+key, func() error {
		stream, err := s.GetStream(ctx, bucket, key, opts)
		if err != nil {
			return err
		}
		defer stream.Close()

		data, err := io.ReadAll(stream)
		if err != nil {
			return cfsierrors.BlobTransient(fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err))
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Debug("blobstore get", "bucket", bucket, "key", key, "bytes", humanize.Bytes(uint64(len(body))))
	return body, nil
}

// GetStream fetches the object body as a stream, requester-pays aware.
func (s *S3Store) GetStream(ctx context.Context, bucket, key string, opts GetOptions) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: requestPayer(opts),
	}
	if opts.CacheControl != "" {
		input.ResponseCacheControl = aws.String(opts.CacheControl)
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, cfsierrors.BlobNotFound(fmt.Errorf("s3://%s/%s: %w", bucket, key, err))
		}
		return nil, cfsierrors.BlobTransient(fmt.Errorf("s3://%s/%s: %w", bucket, key, err))
	}
	return result.Body, nil
}
