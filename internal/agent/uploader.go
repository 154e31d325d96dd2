package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Uploader moves one local recording into the service: presign, PUT the
// bytes, then register the object so processing starts.
type Uploader struct {
	baseURL  string
	token    string
	language string
	client   *http.Client

	maxRetryTime time.Duration
}

func NewUploader(cfg Config) *Uploader {
	return &Uploader{
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		token:        cfg.Token,
		language:     cfg.Language,
		client:       &http.Client{Timeout: 10 * time.Minute},
		maxRetryTime: 5 * time.Minute,
	}
}

type presignResponse struct {
	URL        string `json:"url"`
	StorageKey string `json:"storage_key"`
}

// Upload ships one file. Transient failures are retried with exponential
// backoff; 4xx responses abort immediately since retrying cannot fix them.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	op := func() error {
		return u.uploadOnce(ctx, path)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = u.maxRetryTime
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (u *Uploader) uploadOnce(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("agent: stat %s: %w", path, err))
	}
	contentType := contentTypeFor(path)

	presigned, err := u.presign(ctx, filepath.Base(path), contentType, info.Size())
	if err != nil {
		return err
	}
	if err := u.putObject(ctx, presigned.URL, path, contentType, info.Size()); err != nil {
		return err
	}
	return u.register(ctx, presigned.StorageKey, filepath.Base(path), contentType, info.Size())
}

func (u *Uploader) presign(ctx context.Context, filename, contentType string, size int64) (presignResponse, error) {
	body := map[string]any{"filename": filename, "content_type": contentType, "size": size}
	var out presignResponse
	if err := u.postJSON(ctx, "/v1/uploads/presign", body, &out); err != nil {
		return presignResponse{}, err
	}
	if out.URL == "" || out.StorageKey == "" {
		return presignResponse{}, backoff.Permanent(fmt.Errorf("agent: presign response incomplete"))
	}
	return out, nil
}

func (u *Uploader) putObject(ctx context.Context, url, path, contentType string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("agent: open %s: %w", path, err))
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent: put object: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("agent: put object status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

func (u *Uploader) register(ctx context.Context, storageKey, filename, contentType string, size int64) error {
	body := map[string]any{
		"storage_key":       storageKey,
		"original_filename": filename,
		"content_type":      contentType,
		"size":              size,
		"language":          u.language,
		"source":            "auto_agent",
	}
	return u.postJSON(ctx, "/v1/uploads/register", body, nil)
}

func (u *Uploader) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("agent: post %s status %d: %s", path, resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent: decode %s response: %w", path, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
