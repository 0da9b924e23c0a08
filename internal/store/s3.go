package store

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/pathutil"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

// S3API is the part of the S3 client the store needs, *s3.Client satisfies it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services (MinIO etc)
	Endpoint       string
	ForcePathStyle bool
	// static credentials, the default chain is used when empty
	AccessKeyID string
	SecretKey   string
}

// NewS3Client builds an S3 client from the default AWS config chain.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if c.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" && c.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.ForcePathStyle
	}), nil
}

// S3Store reads objects below a key prefix in one bucket. The prefix plays
// the part of the root directory: no request can address a key outside it.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	index  string
}

func NewS3Store(client S3API, bucket, prefix string, opts ...Option) (*S3Store, error) {
	if client == nil {
		return nil, xerrors.New("s3 store: nil client")
	}
	if bucket == "" {
		return nil, xerrors.New("s3 store: bucket is required")
	}
	o := buildOptions(opts)
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		index:  o.index,
	}, nil
}

func (s *S3Store) Read(ctx context.Context, name string) ([]byte, error) {
	rel := stripLeadingSlashes(name)
	if strings.ContainsRune(rel, 0) || pathutil.HasDotSegments(rel) {
		return nil, notFound(name, errInvalidPath)
	}

	// S3 has no directories: an empty or slash-terminated request goes
	// straight to the index object
	dirLike := rel == "" || strings.HasSuffix(rel, "/")
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if dirLike {
		return s.get(ctx, name, s.key(path.Join(rel, s.index)))
	}

	b, err := s.get(ctx, name, s.key(rel))
	if err == nil || path.Ext(rel) != "" || !errors.Is(err, errObjectMissing) {
		return b, err
	}
	// a missing extensionless key may be a "directory" prefix, try its index once
	return s.get(ctx, name, s.key(path.Join(rel, s.index)))
}

func (s *S3Store) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

func (s *S3Store) get(ctx context.Context, name, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		class := classifyS3Error(err)
		cause := xerrors.Wrapf(err, "get %s (%s)", key, class)
		if class == s3Missing {
			return nil, notFound(name, errors.Join(errObjectMissing, cause))
		}
		// still NotFound to the caller, but a denied or missing bucket is a
		// deployment problem worth surfacing
		log.FromContext(ctx).Warn(ctx, "s3 read failed",
			"bucket", s.bucket,
			"key", key,
			"class", class,
			"error", err.Error(),
		)
		return nil, notFound(name, cause)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, notFound(name, xerrors.Wrapf(err, "read s3 object %s", key))
	}
	return b, nil
}

// errObjectMissing marks a key that does not exist, the only failure that
// may fall through to the directory index.
var errObjectMissing = errors.New("s3 object missing")

// failure classes of a GetObject call
const (
	s3Missing       = "missing"
	s3AccessDenied  = "access_denied"
	s3BucketMissing = "bucket_missing"
	s3Failed        = "error"
)

func classifyS3Error(err error) string {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return s3Missing
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return s3Missing
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return s3Missing
		case "AccessDenied", "Forbidden":
			return s3AccessDenied
		case "NoSuchBucket":
			return s3BucketMissing
		}
	}
	return s3Failed
}
