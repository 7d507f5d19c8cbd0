package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/procuredb/internal/config"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3_Upload(t *testing.T) {
	fake := &fakeS3{}
	s := newS3(fake, config.StorageSettings{Bucket: "brand", Region: "eu-west-1"})

	url, err := s.Upload(context.Background(), "/logos/../logos/acme.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://brand.s3.eu-west-1.amazonaws.com/logos/acme.png", url)
	assert.Equal(t, "brand", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "logos/acme.png", aws.ToString(fake.input.Key))
	assert.Equal(t, "image/png", aws.ToString(fake.input.ContentType))
	assert.Equal(t, []byte("png"), fake.body)
}

func TestS3_UploadPublicURLAndError(t *testing.T) {
	fake := &fakeS3{}
	s := newS3(fake, config.StorageSettings{Bucket: "b", PublicURL: "http://localhost:9000/b/"})

	url, err := s.Upload(context.Background(), "x.svg", "image/svg+xml", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/b/x.svg", url)

	fake.err = errors.New("denied")
	_, err = s.Upload(context.Background(), "x.svg", "image/svg+xml", nil)
	assert.ErrorContains(t, err, "denied")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.StorageSettings{Region: "us-east-1"})
	assert.Error(t, err)
}
