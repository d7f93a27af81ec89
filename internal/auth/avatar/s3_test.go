package avatar

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.in, f.body = in, string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{}
	u := newS3Uploader(fake, Config{Bucket: "avatars", Endpoint: "http://127.0.0.1:9000/"})

	url, err := u.Upload(context.Background(), "avatars/01ABC/x y.png", strings.NewReader("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000/avatars/avatars/01ABC/x%20y.png", url)

	require.Equal(t, "avatars", aws.ToString(fake.in.Bucket))
	require.Equal(t, "avatars/01ABC/x y.png", aws.ToString(fake.in.Key))
	require.Equal(t, "image/png", aws.ToString(fake.in.ContentType))
	require.Equal(t, "img", fake.body)
}

func TestUpload_Error(t *testing.T) {
	u := newS3Uploader(&fakeS3{err: errors.New("NoSuchBucket")}, Config{Bucket: "avatars"})
	_, err := u.Upload(context.Background(), "k.png", strings.NewReader("img"), "image/png")
	require.ErrorContains(t, err, "NoSuchBucket")
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"cdn", Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{"custom endpoint", Config{Bucket: "b", Endpoint: "http://minio:9000"}, "http://minio:9000/b"},
		{"aws", Config{Bucket: "b", Region: "ap-southeast-2"}, "https://b.s3.ap-southeast-2.amazonaws.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, publicBaseURL(tt.cfg))
		})
	}
}

func TestNewS3Uploader(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), Config{})
	require.Error(t, err)

	u, err := NewS3Uploader(context.Background(), Config{
		Bucket:    "avatars",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000/avatars", u.baseURL)
}
