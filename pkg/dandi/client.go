// Package dandi is a minimal REST client for a DANDI-style archive API,
// covering only the endpoints the path-conflict scenario exercises.
package dandi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const DefaultTimeout = 30 * time.Second

// Client talks to one archive instance using token authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Dandiset is the dataset entity which owns assets.
type Dandiset struct {
	Identifier   string `json:"identifier"`
	DraftVersion struct {
		Version string `json:"version"`
	} `json:"draft_version"`
}

// Version returns the API version path component for the dandiset draft.
func (d *Dandiset) Version() string {
	if d.DraftVersion.Version == "" {
		return "draft"
	}
	return d.DraftVersion.Version
}

// UploadRequest names one path to upload together with its expected digest.
type UploadRequest struct {
	Path      string `json:"path"`
	Base64MD5 string `json:"base64md5"`
}

// ZarrFile is one entry of the archive's file listing for a Zarr.
type ZarrFile struct {
	Key          string `json:"Key"`
	ETag         string `json:"ETag"`
	Size         int64  `json:"Size"`
	LastModified string `json:"LastModified"`
}

type filesPage struct {
	Count   int        `json:"count"`
	Next    *string    `json:"next"`
	Results []ZarrFile `json:"results"`
}

// CreateDandiset creates a dataset record and returns its identifier.
func (c *Client) CreateDandiset(ctx context.Context, name string, metadata map[string]interface{}) (*Dandiset, error) {
	body := map[string]interface{}{
		"name":     name,
		"metadata": metadata,
	}
	var d Dandiset
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/dandisets/", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateZarr creates a Zarr storage container under the given dandiset.
func (c *Client) CreateZarr(ctx context.Context, name, dandisetID string) (string, error) {
	body := map[string]string{
		"name":     name,
		"dandiset": dandisetID,
	}
	var resp struct {
		ZarrID string `json:"zarr_id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/zarr/", body, &resp); err != nil {
		return "", err
	}
	return resp.ZarrID, nil
}

// RegisterAsset registers a Zarr as an asset of a dandiset version.
func (c *Client) RegisterAsset(ctx context.Context, dandisetID, version, assetPath, description, zarrID string) error {
	body := map[string]interface{}{
		"metadata": map[string]string{
			"path":        assetPath,
			"description": description,
		},
		"zarr_id": zarrID,
	}
	endpoint := fmt.Sprintf("%s/dandisets/%s/versions/%s/assets/", c.baseURL, dandisetID, version)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// RequestUploadTargets asks the archive for one pre-signed destination per
// request, returned in request order.
func (c *Client) RequestUploadTargets(ctx context.Context, zarrID string, reqs []UploadRequest) ([]string, error) {
	var urls []string
	endpoint := fmt.Sprintf("%s/zarr/%s/files/", c.baseURL, zarrID)
	if err := c.do(ctx, http.MethodPost, endpoint, reqs, &urls); err != nil {
		return nil, err
	}
	if len(urls) != len(reqs) {
		return nil, errors.Errorf("requested %d upload targets, archive returned %d", len(reqs), len(urls))
	}
	return urls, nil
}

// DeleteFiles removes the named paths from a Zarr.
func (c *Client) DeleteFiles(ctx context.Context, zarrID string, paths []string) error {
	body := make([]map[string]string, len(paths))
	for i, p := range paths {
		body[i] = map[string]string{"path": p}
	}
	endpoint := fmt.Sprintf("%s/zarr/%s/files/", c.baseURL, zarrID)
	return c.do(ctx, http.MethodDelete, endpoint, body, nil)
}

// ListFiles returns the archive's current file listing for a Zarr,
// following pagination links until exhausted.
func (c *Client) ListFiles(ctx context.Context, zarrID string) ([]ZarrFile, error) {
	var files []ZarrFile
	next := fmt.Sprintf("%s/zarr/%s/files/", c.baseURL, zarrID)
	for next != "" {
		var page filesPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Results...)
		if page.Next != nil {
			next = *page.Next
		} else {
			next = ""
		}
	}
	return files, nil
}

// Finalize closes the current write batch for a Zarr, making it visible in listings.
func (c *Client) Finalize(ctx context.Context, zarrID string) error {
	endpoint := fmt.Sprintf("%s/zarr/%s/finalize/", c.baseURL, zarrID)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// UploadBlob PUTs raw bytes directly to a pre-signed storage URL. The digest
// goes into Content-MD5 so the storage backend validates integrity, and the
// ACL header hands object ownership to the bucket owner. No archive
// authentication is involved, the credentials are embedded in the URL.
func (c *Client) UploadBlob(ctx context.Context, signedURL string, blob []byte, base64md5 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(blob))
	if err != nil {
		return errors.Wrapf(err, "can't create upload request for %q", signedURL)
	}
	req.Header.Set("Content-MD5", base64md5)
	req.Header.Set("X-Amz-ACL", "bucket-owner-full-control")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "blob upload failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("blob upload returned status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// Ready probes the dandisets collection endpoint. Any HTTP response counts
// as reachable, only transport failures are errors.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dandisets/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) do(ctx context.Context, method, fullURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "error encoding %s %s request", method, fullURL)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return errors.Wrapf(err, "error creating request to %q", fullURL)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "error while requesting %s %s", method, fullURL)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s returned status %d: %s", method, fullURL, resp.StatusCode, string(snippet))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "error decoding %s %s response", method, fullURL)
		}
	}
	return nil
}
