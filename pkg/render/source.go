package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Source reads artifact files. Missing files are reported with an error
// wrapping ErrNotFound.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

// FSSource reads artifacts from a file system.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource returns a source over fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// NewDirSource returns a source over the directory root.
func NewDirSource(root string) *FSSource {
	return &FSSource{fsys: os.DirFS(root)}
}

// Read implements Source.
func (s *FSSource) Read(_ context.Context, name string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads artifacts from objects under a bucket prefix.
//
// Example usage:
//
//	client := render.NewS3Client(render.S3Options{Region: "us-east-1"})
//	src := render.NewS3Source(client, "views", "releases/42/app/")
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source creates an S3 artifact source.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Read implements Source.
func (s *S3Source) Read(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region string

	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. If both are
	// empty requests are anonymous.
	AccessKeyID     string
	SecretAccessKey string

	UsePathStyle bool
}

// NewS3Client builds an S3 client from explicit options.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			Source:          "viewbridge",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(o)
}
