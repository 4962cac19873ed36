package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	DocumentPrefix = "documents"
	GraphPrefix    = "graphs"
)

var ErrObjectNotFound = errors.New("object not found")

// Storage keeps uploaded documents and graph JSON in one S3 bucket.
type Storage struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
}

// NewS3Client creates a Storage from the AWS_* environment variables.
func NewS3Client(ctx context.Context) (*Storage, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnv("AWS_REGION")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewStorage(client, util.GetEnv("AWS_BUCKET"), util.GetEnv("AWS_PUBLIC_ENDPOINT")), nil
}

func NewStorage(client *s3.Client, bucket, publicEndpoint string) *Storage {
	return &Storage{client: client, bucket: bucket, publicEndpoint: publicEndpoint}
}

func (s *Storage) Client() *s3.Client {
	return s.client
}

func (s *Storage) Bucket() string {
	return s.bucket
}

// DocumentKey is the object key of an uploaded document.
func DocumentKey(id, fileName string) string {
	return fmt.Sprintf("%s/%s%s", DocumentPrefix, id, strings.ToLower(path.Ext(fileName)))
}

// GraphKey is the object key of a graph's JSON.
func GraphKey(id string) string {
	return fmt.Sprintf("%s/%s.json", GraphPrefix, id)
}

func contentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (s *Storage) GetFile(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return buf.Bytes(), nil
}

// PutFile uploads file under key. The content type is derived from name.
func (s *Storage) PutFile(ctx context.Context, key string, name string, file io.ReadSeeker) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

func (s *Storage) DeleteFile(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// PutGraph stores g as JSON under GraphKey(g.ID).
func (s *Storage) PutGraph(ctx context.Context, g common.OntologyGraph) (string, error) {
	data, err := store.MarshalGraph(g)
	if err != nil {
		return "", err
	}
	key := GraphKey(g.ID)
	if err := s.PutFile(ctx, key, key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Storage) GetGraph(ctx context.Context, id string) (common.OntologyGraph, error) {
	data, err := s.GetFile(ctx, GraphKey(id))
	if err != nil {
		return common.OntologyGraph{}, err
	}
	return store.UnmarshalGraph(data)
}

func (s *Storage) DeleteGraph(ctx context.Context, id string) error {
	return s.DeleteFile(ctx, GraphKey(id))
}

// GenerateDownloadLink presigns a GET for key against the public endpoint.
// The link is valid for 15 minutes.
func (s *Storage) GenerateDownloadLink(ctx context.Context, key string) (string, error) {
	publicURL, err := url.Parse(s.publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", s.publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")
	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	// The signature covers the Host header, so presign against the host
	// clients will actually use.
	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      s.client.Options().Region,
			Credentials: s.client.Options().Credentials,
			HTTPClient:  s.client.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, err := url.Parse(out.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", err)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}

func (s *Storage) ListFilesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if listOutput.IsTruncated == nil || !*listOutput.IsTruncated {
			break
		}
		listInput.ContinuationToken = listOutput.NextContinuationToken
	}
	return keys, nil
}

// ListGraphIDs returns the IDs of all graphs stored in the bucket.
func (s *Storage) ListGraphIDs(ctx context.Context) ([]string, error) {
	keys, err := s.ListFilesWithPrefix(ctx, GraphPrefix+"/")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := graphIDFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func graphIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, GraphPrefix+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".json")
	return id, ok && id != ""
}
