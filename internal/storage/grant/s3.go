package grant

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mixtape/mixtape/internal/localfs"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/validation"
)

// s3API is the subset of *s3.Client the grant uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Grant stores artifacts under a bucket prefix. Locators look like
// s3://bucket/prefix/name.
type S3Grant struct {
	client s3API
	bucket string
	prefix string
	label  string

	mu        sync.Mutex
	mimeTypes map[storage.Locator]string
}

// NewS3Grant builds an S3 client for the grant. Static credentials are used
// when present; otherwise the default AWS credential chain applies.
// A custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Grant(ctx context.Context, cfg models.S3Grant, label string, httpClient *nethttp.Client) (*S3Grant, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 grant requires a bucket")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Grant(client, cfg.Bucket, cfg.Prefix, label), nil
}

func newS3Grant(client s3API, bucket, prefix, label string) *S3Grant {
	prefix = strings.Trim(prefix, "/")
	if label == "" {
		label = "s3://" + path.Join(bucket, prefix)
	}
	return &S3Grant{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		label:     label,
		mimeTypes: make(map[storage.Locator]string),
	}
}

// Label returns the display label.
func (g *S3Grant) Label() string { return g.label }

func (g *S3Grant) key(name string) string {
	if g.prefix == "" {
		return name
	}
	return g.prefix + "/" + name
}

func (g *S3Grant) root() string {
	return "s3://" + g.bucket + "/"
}

// Locate returns the locator for name.
func (g *S3Grant) Locate(name string) storage.Locator {
	return storage.Locator(g.root() + g.key(name))
}

// NameOf returns the object name without bucket and prefix.
func (g *S3Grant) NameOf(loc storage.Locator) string {
	return path.Base(string(loc))
}

// keyOf returns the object key for loc, rejecting locators from other buckets
// or outside the prefix.
func (g *S3Grant) keyOf(op string, loc storage.Locator) (string, error) {
	key, ok := strings.CutPrefix(string(loc), g.root())
	if !ok || (g.prefix != "" && !strings.HasPrefix(key, g.prefix+"/")) {
		return "", storage.NewError(op, loc, storage.ErrPermissionDenied, fmt.Errorf("locator outside granted prefix"))
	}
	return key, nil
}

// CreateArtifact reserves a locator for name. S3 has no empty-object step;
// the object appears when WriteArtifact uploads it.
func (g *S3Grant) CreateArtifact(_ context.Context, name, mimeType string) (storage.Locator, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return "", storage.NewError("create", storage.Locator(name), storage.ErrInvalidName, err)
	}
	loc := g.Locate(name)
	g.mu.Lock()
	g.mimeTypes[loc] = mimeType
	g.mu.Unlock()
	return loc, nil
}

// WriteArtifact uploads r as the whole object.
func (g *S3Grant) WriteArtifact(ctx context.Context, loc storage.Locator, r io.Reader, size int64) error {
	key, err := g.keyOf("write", loc)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	g.mu.Lock()
	if mt := g.mimeTypes[loc]; mt != "" {
		input.ContentType = aws.String(mt)
	}
	g.mu.Unlock()

	if _, err := g.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", loc, err, storage.ErrWriteFailed)
	}
	g.mu.Lock()
	delete(g.mimeTypes, loc)
	g.mu.Unlock()
	return nil
}

// Stat returns the object at loc.
func (g *S3Grant) Stat(ctx context.Context, loc storage.Locator) (storage.Artifact, error) {
	key, err := g.keyOf("stat", loc)
	if err != nil {
		return storage.Artifact{}, err
	}
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.Artifact{}, mapS3Error("stat", loc, err, storage.ErrNotFound)
	}
	return storage.Artifact{
		Name:    g.NameOf(loc),
		Locator: loc,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// Open streams the object at loc.
func (g *S3Grant) Open(ctx context.Context, loc storage.Locator) (io.ReadCloser, error) {
	key, err := g.keyOf("open", loc)
	if err != nil {
		return nil, err
	}
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("open", loc, err, storage.ErrNotFound)
	}
	return out.Body, nil
}

// Remove deletes the object at loc. S3 deletes are already idempotent.
func (g *S3Grant) Remove(ctx context.Context, loc storage.Locator) error {
	key, err := g.keyOf("remove", loc)
	if err != nil {
		return err
	}
	_, err = g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		mapped := mapS3Error("remove", loc, err, storage.ErrWriteFailed)
		if storage.IsNotFound(mapped) {
			return nil
		}
		return mapped
	}
	return nil
}

// List returns the objects directly under the prefix.
func (g *S3Grant) List(ctx context.Context) ([]storage.Artifact, error) {
	listPrefix := ""
	if g.prefix != "" {
		listPrefix = g.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(g.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})

	var out []storage.Artifact
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("list", storage.Locator(g.root()+listPrefix), err, storage.ErrNotFound)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			if name == "" || strings.Contains(name, "/") || localfs.IsHiddenName(name) {
				continue
			}
			out = append(out, storage.Artifact{
				Name:    name,
				Locator: g.Locate(name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// mapS3Error translates S3 API error codes into storage error kinds.
func mapS3Error(op string, loc storage.Locator, err error, fallback error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return storage.NewError(op, loc, storage.ErrNotFound, err)
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return storage.NewError(op, loc, storage.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "AllAccessDisabled", "AccountProblem":
			return storage.NewError(op, loc, storage.ErrPermissionDenied, err)
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return storage.NewError(op, loc, storage.ErrNotFound, err)
		}
	}
	return storage.Classify(op, loc, err, fallback)
}
