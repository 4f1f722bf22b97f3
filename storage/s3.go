package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

const s3Prefix = "uploads/"

type S3 struct {
	api    s3iface.S3API
	bucket string
}

// NewS3 uses the default AWS credential chain.
func NewS3(region, bucket string) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return NewS3WithClient(s3.New(sess), bucket), nil
}

func NewS3WithClient(api s3iface.S3API, bucket string) *S3 {
	return &S3{api: api, bucket: bucket}
}

func (s *S3) key(id string) *string { return aws.String(s3Prefix + id) }

func isMissing(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *S3) Put(ctx context.Context, info FileInfo, r io.Reader) (FileInfo, error) {
	// PutObject needs a seekable body; uploads are already size-capped.
	body, err := io.ReadAll(r)
	if err != nil {
		return FileInfo{}, err
	}
	info.ID = uuid.NewString()
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.key(info.ID),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(info.ContentType),
		Metadata: map[string]*string{
			"Owner":    aws.String(strconv.FormatInt(info.Owner, 10)),
			"Filename": aws.String(info.Name),
		},
	})
	if err != nil {
		return FileInfo{}, err
	}
	info.Size = int64(len(body))
	info.UploadedAt = time.Now().UTC()
	return info, nil
}

func metaValue(m map[string]*string, k string) string {
	if v, ok := m[k]; ok && v != nil {
		return *v
	}
	return ""
}

func (s *S3) Stat(ctx context.Context, id string) (FileInfo, error) {
	out, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(id),
	})
	if isMissing(err) {
		return FileInfo{}, ErrNotFound
	}
	if err != nil {
		return FileInfo{}, err
	}
	owner, _ := strconv.ParseInt(metaValue(out.Metadata, "Owner"), 10, 64)
	return FileInfo{
		ID:          id,
		Name:        metaValue(out.Metadata, "Filename"),
		ContentType: aws.StringValue(out.ContentType),
		Size:        aws.Int64Value(out.ContentLength),
		Owner:       owner,
		UploadedAt:  aws.TimeValue(out.LastModified),
	}, nil
}

func (s *S3) Open(ctx context.Context, id string) (io.ReadCloser, FileInfo, error) {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return nil, FileInfo{}, err
	}
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(id),
	})
	if isMissing(err) {
		return nil, FileInfo{}, ErrNotFound
	}
	if err != nil {
		return nil, FileInfo{}, err
	}
	return out.Body, info, nil
}

func (s *S3) Delete(ctx context.Context, id string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(id),
	})
	return err
}
