package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockS3API struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *MockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

func TestAssetKey(t *testing.T) {
	key, err := AssetKey("doctors", "DR-1730000000123", "frontPhoto", ".JPG")
	require.NoError(t, err)
	assert.Equal(t, "doctors/DR-1730000000123/frontPhoto.jpg", key)

	key, err = AssetKey("doctors", "DR-1", "degreePdf", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "doctors/DR-1/degreePdf.pdf", key)

	for _, bad := range [][3]string{
		{"", "DR-1", "frontPhoto"},
		{"doctors", "../etc", "frontPhoto"},
		{"doctors", "DR-1", ".."},
		{"doctors", `DR\1`, "frontPhoto"},
	} {
		_, err := AssetKey(bad[0], bad[1], bad[2], ".pdf")
		assert.ErrorIs(t, err, ErrInvalidKey, "%v", bad)
	}
}

func TestS3Store_Put(t *testing.T) {
	var captured *s3.PutObjectInput
	var body []byte
	mock := &MockS3API{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			captured = params
			body, _ = io.ReadAll(params.Body)
			return &s3.PutObjectOutput{}, nil
		},
	}

	store := NewS3Store(mock, "clinic-forms-uploads", "us-east-1", "")
	url, err := store.Put(context.Background(), Object{
		Key:         "doctors/DR-1/degreePdf.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.7"),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://clinic-forms-uploads.s3.us-east-1.amazonaws.com/doctors/DR-1/degreePdf.pdf", url)
	assert.Equal(t, "clinic-forms-uploads", aws.ToString(captured.Bucket))
	assert.Equal(t, "doctors/DR-1/degreePdf.pdf", aws.ToString(captured.Key))
	assert.Equal(t, "application/pdf", aws.ToString(captured.ContentType))
	assert.Equal(t, types.ObjectCannedACLPublicRead, captured.ACL)
	assert.Equal(t, []byte("%PDF-1.7"), body)
}

func TestS3Store_PublicBaseURLAndFailure(t *testing.T) {
	mock := &MockS3API{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			if aws.ToString(params.Key) == "labs/LAB-1/broken.pdf" {
				return nil, errors.New("AccessDenied")
			}
			return &s3.PutObjectOutput{}, nil
		},
	}
	store := NewS3Store(mock, "bucket", "eu-west-1", "https://cdn.clinic.example.org/")

	url, err := store.Put(context.Background(), Object{Key: "doctors/DR-1/frontPhoto.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.clinic.example.org/doctors/DR-1/frontPhoto.png", url)

	_, err = store.Put(context.Background(), Object{Key: "labs/LAB-1/broken.pdf"})
	assert.ErrorIs(t, err, ErrObjectStoreFailed)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("")
	content := []byte("png")

	url, err := store.Put(context.Background(), Object{Key: "doctors/DR-1/frontPhoto.png", ContentType: "image/png", Content: content})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/uploads/doctors/DR-1/frontPhoto.png", url)

	content[0] = 'X'
	obj, ok := store.Get("doctors/DR-1/frontPhoto.png")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), obj.Content, "stored bytes are copied")

	_, err = store.Put(context.Background(), Object{Key: "doctors/DR-1/frontPhoto.png"})
	assert.ErrorIs(t, err, ErrObjectStoreFailed, "objects are create-only")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, Object{Key: "doctors/DR-2/frontPhoto.png"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"doctors/DR-1/frontPhoto.png"}, store.Keys())
}
