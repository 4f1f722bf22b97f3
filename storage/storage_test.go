package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestInspect_AllowsPNG(t *testing.T) {
	ct, body, err := DefaultProofPolicy.Inspect(bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)
}

func TestInspect_AllowsPDF(t *testing.T) {
	ct, _, err := DefaultProofPolicy.Inspect(strings.NewReader("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
}

func TestInspect_RejectsText(t *testing.T) {
	_, _, err := DefaultProofPolicy.Inspect(strings.NewReader("just some notes"))
	assert.True(t, errors.Is(err, ErrFileType))
}

func TestInspect_RejectsEmpty(t *testing.T) {
	_, _, err := DefaultProofPolicy.Inspect(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, ErrFileType))
}

func TestInspect_CapsSize(t *testing.T) {
	p := Policy{MaxBytes: 64, Allowed: DefaultProofPolicy.Allowed}
	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)

	_, body, err := p.Inspect(bytes.NewReader(big))
	require.NoError(t, err)
	_, err = io.ReadAll(body)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

type fakeObject struct {
	body []byte
	ct   string
	meta map[string]*string
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string]fakeObject
}

func notFound() error { return awserr.New("NotFound", "not found", nil) }

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = fakeObject{body: b, ct: aws.StringValue(in.ContentType), meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	o, ok := f.objects[*in.Key]
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(o.ct),
		ContentLength: aws.Int64(int64(len(o.body))),
		Metadata:      o.meta,
	}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	o, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_RoundTrip(t *testing.T) {
	api := &fakeS3{objects: map[string]fakeObject{}}
	store := NewS3WithClient(api, "proofs")
	ctx := context.Background()

	info, err := store.Put(ctx, FileInfo{Name: "proof.png", ContentType: "image/png", Owner: 42}, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, int64(len(pngHeader)), info.Size)

	st, err := store.Stat(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), st.Owner)
	assert.Equal(t, "proof.png", st.Name)
	assert.Equal(t, "image/png", st.ContentType)

	rc, _, err := store.Open(ctx, info.ID)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, pngHeader, got)

	require.NoError(t, store.Delete(ctx, info.ID))
	_, err = store.Stat(ctx, info.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
