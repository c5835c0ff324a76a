package objectstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"winivox/internal/services"
)

// S3Options configures the S3 backend. An empty Endpoint targets AWS; MinIO
// deployments set Endpoint and PathStyle.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3 is the aws-sdk-go backed store.
type S3 struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewS3 builds a session from opts. Static credentials are used when an
// access key is configured; otherwise the SDK's default chain applies.
func NewS3(opts S3Options) (*S3, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(strings.TrimSpace(opts.Region)),
		S3ForcePathStyle: aws.Bool(opts.PathStyle),
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.DisableSSL = aws.Bool(strings.HasPrefix(endpoint, "http://"))
	}
	if access := strings.TrimSpace(opts.AccessKey); access != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(access, strings.TrimSpace(opts.SecretKey), "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "create aws session", err)
	}
	client := s3.New(sess)
	return &S3{
		client:     client,
		uploader:   s3manager.NewUploaderWithClient(client),
		downloader: s3manager.NewDownloaderWithClient(client),
	}, nil
}

func (s *S3) Download(ctx context.Context, bucket, key, localPath string) error {
	err := writeAtomically(localPath, func(f *os.File) error {
		_, err := s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if isS3NotFound(err) {
		return notFound("download", bucket, key, err)
	}
	if err != nil {
		return storageError("download", bucket, key, err)
	}
	return nil
}

func (s *S3) Upload(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return storageError("upload", bucket, key, err)
	}
	defer f.Close()
	if _, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return storageError("upload", bucket, key, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return storageError("delete", bucket, key, err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, storageError("stat", bucket, key, err)
	}
	return true, nil
}

func (s *S3) PresignPut(_ context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, _ := s.client.PutObjectRequest(input)
	url, err := req.Presign(ttl)
	if err != nil {
		return "", storageError("presign", bucket, key, err)
	}
	return url, nil
}

func (s *S3) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", storageError("presign", bucket, key, err)
	}
	return url, nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == 404 {
		return true
	}
	return false
}
