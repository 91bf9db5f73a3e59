package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	existing  map[string]bool
	headErr   error
	deleteErr error
	failKeys  map[string]string
	deleted   []string
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if !f.existing[aws.ToString(in.Key)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	out := &s3.DeleteObjectsOutput{}
	for _, obj := range in.Delete.Objects {
		key := aws.ToString(obj.Key)
		if msg, ok := f.failKeys[key]; ok {
			out.Errors = append(out.Errors, types.Error{Key: aws.String(key), Message: aws.String(msg)})
			continue
		}
		f.deleted = append(f.deleted, key)
		delete(f.existing, key)
	}
	return out, nil
}

func testClient(f *fakeObjects) *Client {
	return newClientWithAPI(S3Config{Bucket: "archive", KeyPrefix: "/staging/"}, f)
}

func TestObjectKey(t *testing.T) {
	c := testClient(&fakeObjects{})
	assert.Equal(t, "staging/s1/f1", c.ObjectKey("s1", "f1"))
}

func TestDeleteSplitsDeletedAndNotFound(t *testing.T) {
	f := &fakeObjects{existing: map[string]bool{"staging/s1/f1": true}}
	res := testClient(f).Delete(context.Background(), []string{"f1", "f2"}, "s1")

	require.True(t, res.OK)
	assert.Equal(t, []string{"f1"}, res.Deleted)
	assert.Equal(t, []string{"f2"}, res.NotFound)
	assert.Equal(t, []string{"staging/s1/f1"}, f.deleted)

	again := testClient(f).Delete(context.Background(), []string{"f1", "f2"}, "s1")
	assert.True(t, again.OK)
	assert.Empty(t, again.Deleted)
	assert.Equal(t, []string{"f1", "f2"}, again.NotFound)
}

func TestDeleteReportsPerObjectErrors(t *testing.T) {
	f := &fakeObjects{
		existing: map[string]bool{"staging/s1/f1": true, "staging/s1/f2": true},
		failKeys: map[string]string{"staging/s1/f2": "AccessDenied"},
	}
	res := testClient(f).Delete(context.Background(), []string{"f1", "f2"}, "s1")

	assert.False(t, res.OK)
	assert.Equal(t, []string{"f1"}, res.Deleted)
	assert.Contains(t, res.Error, "AccessDenied")
}

func TestDeleteHeadFailure(t *testing.T) {
	f := &fakeObjects{headErr: errors.New("connection reset")}
	res := testClient(f).Delete(context.Background(), []string{"f1"}, "s1")
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "connection reset")
}

func TestDeleteEmpty(t *testing.T) {
	res := testClient(&fakeObjects{}).Delete(context.Background(), nil, "s1")
	assert.True(t, res.OK)
	assert.NotNil(t, res.Deleted)
}
