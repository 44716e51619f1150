// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage talks to the S3-compatible bucket behind each storage
// account. Clients use path-style addressing and static credentials taken
// from the account record, and are cached per account.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"photostore/internal/models"
)

const defaultRegion = "us-east-1"

// RemoteError is a failed call to the storage provider. Retryable is set
// for transport failures, throttling and server-side errors.
type RemoteError struct {
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("s3 %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable RemoteError.
func IsRetryable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Retryable
}

func remoteError(op, key string, err error) error {
	return &RemoteError{Op: op, Key: key, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status >= http.StatusInternalServerError ||
			status == http.StatusTooManyRequests ||
			status == http.StatusRequestTimeout
	}
	// No response at all: connection refused, DNS, deadline.
	return true
}

type cachedClient struct {
	client    *s3.Client
	endpoint  string
	accessKey string
}

// Provider uploads to and deletes from account buckets.
type Provider struct {
	mu      sync.Mutex
	clients map[uuid.UUID]cachedClient
	optFns  []func(*s3.Options)
}

// NewProvider creates a provider. optFns are applied to every client it
// builds.
func NewProvider(optFns ...func(*s3.Options)) *Provider {
	return &Provider{
		clients: make(map[uuid.UUID]cachedClient),
		optFns:  optFns,
	}
}

// client returns the cached client for an account, rebuilding it when the
// endpoint or credentials changed.
func (p *Provider) client(account *models.StorageAccount) *s3.Client {
	endpoint := strings.TrimRight(account.Endpoint, "/")

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[account.ID]; ok && c.endpoint == endpoint && c.accessKey == account.AccessKey {
		return c.client
	}

	region := account.Region
	if region == "" {
		region = defaultRegion
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(account.AccessKey, account.SecretKey, ""),
		UsePathStyle: true,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	client := s3.New(opts, p.optFns...)

	p.clients[account.ID] = cachedClient{client: client, endpoint: endpoint, accessKey: account.AccessKey}
	return client
}

// Upload stores body under key in the account's bucket.
func (p *Provider) Upload(ctx context.Context, account *models.StorageAccount, key, contentType string, body io.Reader, size int64) error {
	_, err := p.client(account).PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(account.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return remoteError("upload", account.Bucket+"/"+key, err)
	}
	return nil
}

// Delete removes key from the account's bucket. Deleting a missing key
// succeeds.
func (p *Provider) Delete(ctx context.Context, account *models.StorageAccount, key string) error {
	_, err := p.client(account).DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(account.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return remoteError("delete", account.Bucket+"/"+key, err)
	}
	return nil
}

// Usage sums the size of every object in the account's bucket.
func (p *Provider) Usage(ctx context.Context, account *models.StorageAccount) (int64, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client(account), &s3.ListObjectsV2Input{
		Bucket: aws.String(account.Bucket),
	})

	var used int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, remoteError("list", account.Bucket, err)
		}
		for _, obj := range page.Contents {
			used += aws.ToInt64(obj.Size)
		}
	}
	return used, nil
}

// RemainingCapacity is the account quota minus what the bucket holds,
// never negative.
func (p *Provider) RemainingCapacity(ctx context.Context, account *models.StorageAccount) (int64, error) {
	used, err := p.Usage(ctx, account)
	if err != nil {
		return 0, err
	}
	return max(account.QuotaBytes-used, 0), nil
}

// ObjectKey builds the storage filename of an item: kind, upload month and
// id, keeping the original extension.
func ObjectKey(item *models.Item, now time.Time) string {
	ext := strings.ToLower(path.Ext(item.OriginalFilename))
	return fmt.Sprintf("%s/%s/%s%s", item.Kind(), now.UTC().Format("2006/01"), item.ID, ext)
}
