package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/OFFIS-RIT/policygraph/pkg/loader"
)

// S3Loader is a Loader that reads documents from an S3 bucket. The
// document path is used as the object key.
type S3Loader struct {
	bucket string
	client *s3.Client
	memo   *loader.Memo
}

// NewS3LoaderWithClient creates a new S3Loader using an existing s3.Client.
func NewS3LoaderWithClient(bucket string, client *s3.Client) *S3Loader {
	return &S3Loader{
		bucket: bucket,
		client: client,
		memo:   loader.NewMemo(),
	}
}

// NewS3LoaderParams defines the configuration parameters for creating a
// new S3Loader.
//
// Endpoint allows overriding the S3 endpoint (useful for S3-compatible
// storage like MinIO).
type NewS3LoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Loader creates a new S3Loader with static credentials.
//
// Example:
//
//	l, err := s3.NewS3Loader(ctx, s3.NewS3LoaderParams{
//		Bucket:    "policies",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	doc, _ := loader.NewDocument("travel", "documents/travel.md", l)
//	text, err := doc.GetText(ctx)
func NewS3Loader(ctx context.Context, params NewS3LoaderParams) (*S3Loader, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewS3LoaderWithClient(params.Bucket, client), nil
}

// GetText retrieves the object for doc from the configured bucket.
func (l *S3Loader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(doc.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get object %s: %w", doc.Path, err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}
