// Package storage deletes relay-stored objects directly from an S3-compatible
// bucket, for deployments where the relay's backing store is reachable.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"literary-archive/internal/relay"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	KeyPrefix string
}

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Client struct {
	cfg S3Config
	s3  objectAPI
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newClientWithAPI(cfg, s3Client), nil
}

func newClientWithAPI(cfg S3Config, api objectAPI) *Client {
	return &Client{cfg: cfg, s3: api}
}

// ObjectKey is where the relay stores a file: <prefix>/<staging_id>/<drive_file_id>.
func (c *Client) ObjectKey(stagingID, fileID string) string {
	return path.Join(strings.Trim(c.cfg.KeyPrefix, "/"), stagingID, fileID)
}

// Delete mirrors the relay delete contract: missing objects are reported in
// NotFound, and failures are returned in the result instead of as errors.
func (c *Client) Delete(ctx context.Context, fileIDs []string, stagingID string) relay.DeleteResult {
	res := relay.DeleteResult{OK: true, Deleted: []string{}, NotFound: []string{}}
	if len(fileIDs) == 0 {
		return res
	}

	present := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.cfg.Bucket),
			Key:    aws.String(c.ObjectKey(stagingID, id)),
		})
		if err != nil {
			if isNotFound(err) {
				res.NotFound = append(res.NotFound, id)
				continue
			}
			return fail(res, fmt.Sprintf("head %s: %v", id, err))
		}
		present = append(present, id)
	}
	if len(present) == 0 {
		return res
	}

	objects := make([]types.ObjectIdentifier, 0, len(present))
	byKey := make(map[string]string, len(present))
	for _, id := range present {
		key := c.ObjectKey(stagingID, id)
		byKey[key] = id
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	out, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.cfg.Bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fail(res, fmt.Sprintf("delete objects: %v", err))
	}

	failedKeys := make(map[string]string)
	for _, e := range out.Errors {
		failedKeys[aws.ToString(e.Key)] = aws.ToString(e.Message)
	}
	for _, id := range present {
		if msg, bad := failedKeys[c.ObjectKey(stagingID, id)]; bad {
			res.OK = false
			if res.Error == "" {
				res.Error = fmt.Sprintf("delete %s: %s", id, msg)
			}
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	return res
}

func fail(res relay.DeleteResult, msg string) relay.DeleteResult {
	res.OK = false
	res.Error = msg
	return res
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
