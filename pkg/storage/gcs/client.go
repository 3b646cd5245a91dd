package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

const (
	defaultAPIBase    = "https://storage.googleapis.com/storage/v1"
	defaultUploadBase = "https://storage.googleapis.com/upload/storage/v1"
	pingTimeout       = 5 * time.Second

	minChunkBytes = 256 * 1024
)

// Client talks to the GCS JSON API directly: resumable uploads with chunked
// progress, idempotent deletes, and public URL resolution.
type Client struct {
	httpClient    *http.Client
	bucket        string
	publicBaseURL string
	apiBase       string
	uploadBase    string
	chunkBytes    int64
	tokenSource   *tokenSource
}

var _ storage.Store = (*Client)(nil)

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := &http.Client{Timeout: 0}

	var ts *tokenSource
	var err error
	switch {
	case gcp.CredentialsJSON != "":
		ts, err = newServiceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = newServiceAccountTokenSource(httpClient, string(raw))
	default:
		ts = newMetadataTokenSource(httpClient)
	}
	if err != nil {
		return nil, err
	}

	chunk := cfg.ChunkBytes
	if chunk < minChunkBytes {
		chunk = minChunkBytes
	}
	// GCS requires chunk sizes in 256KiB multiples except for the final chunk.
	chunk -= chunk % minChunkBytes

	client := &Client{
		httpClient:    httpClient,
		bucket:        cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		apiBase:       defaultAPIBase,
		uploadBase:    defaultUploadBase,
		chunkBytes:    chunk,
		tokenSource:   ts,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

// Ping lists at most one object to verify credentials and bucket access.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/b/%s/o?maxResults=1", c.apiBase, url.PathEscape(c.bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(body) > 0 {
			return fmt.Errorf("gcs bucket check failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("gcs bucket check failed: %s", resp.Status)
	}

	return nil
}

// Upload runs the resumable upload protocol: one session initiation followed
// by sequential chunk PUTs. The progress callback fires after every accepted
// chunk, so a caller aggregating percentages sees monotonic byte counts.
func (c *Client) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	if objectPath == "" {
		return "", errors.New("object path is required")
	}
	if size <= 0 {
		return "", errors.New("object size must be positive")
	}

	sessionURL, err := c.initiateSession(ctx, objectPath, contentType, size)
	if err != nil {
		return "", err
	}

	var sent int64
	buf := make([]byte, c.chunkBytes)
	for sent < size {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		want := c.chunkBytes
		if remaining := size - sent; remaining < want {
			want = remaining
		}
		n, readErr := io.ReadFull(r, buf[:want])
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return "", fmt.Errorf("reading upload payload: %w", readErr)
		}
		if int64(n) != want {
			return "", fmt.Errorf("upload payload truncated at byte %d", sent+int64(n))
		}

		if err := c.putChunk(ctx, sessionURL, buf[:n], sent, size); err != nil {
			return "", err
		}
		sent += int64(n)
		if progress != nil {
			progress(sent, size)
		}
	}

	return c.PublicURL(objectPath), nil
}

func (c *Client) initiateSession(ctx context.Context, objectPath, contentType string, size int64) (string, error) {
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/b/%s/o?uploadType=resumable&name=%s",
		c.uploadBase, url.PathEscape(c.bucket), url.QueryEscape(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Upload-Content-Type", contentType)
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiating resumable upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resumable upload initiation returned %s", resp.Status)
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", errors.New("resumable upload session URL missing")
	}
	return session, nil
}

func (c *Client) putChunk(ctx context.Context, sessionURL string, chunk []byte, offset, total int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, strings.NewReader(string(chunk)))
	if err != nil {
		return err
	}
	last := offset + int64(len(chunk)) - 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, last, total))
	req.ContentLength = int64(len(chunk))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading chunk at %d: %w", offset, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case 308: // Resume Incomplete: chunk accepted, more expected.
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chunk upload returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
}

// Delete removes the object; a 404 maps to storage.ErrNotFound so callers can
// treat missing objects as already gone.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	if objectPath == "" {
		return errors.New("object path is required")
	}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/b/%s/o/%s", c.apiBase, url.PathEscape(c.bucket), url.PathEscape(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("object delete returned %s", resp.Status)
	}
}

// PublicURL builds the durable public locator for an object.
func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, objectPath)
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) Close() error {
	return nil
}
