// Package sdk is the client-side HTTP binding to the four protocol
// endpoints of spec.md §3/§6: manifest, chunk upload, complete, delete.
//
// Grounded on internal/syftsdk/sdk.go's client-construction shape and
// internal/syftsdk/blob.go's R().SetBody(...).SetSuccessResult(...).Verb()
// call pattern in the teacher repo, using the teacher's actual HTTP
// library (github.com/imroc/req/v3) rather than the resty.dev/v3 import
// that file mixes in inconsistently.
package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
	"github.com/filemirrorsync/filemirrorsync/internal/version"
)

const (
	headerAPIKey = "X-Api-Key"

	pathManifest = "/api/sync/manifest"
	pathDelete   = "/api/sync/delete"
)

// Client is the sync protocol's HTTP binding.
type Client struct {
	http *req.Client
}

// New returns a Client targeting baseURL, authenticated with apiKey.
func New(baseURL, apiKey string) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(time.Second).
		SetUserAgent("FileMirrorSync/" + version.Version).
		SetCommonHeader(headerAPIKey, apiKey).
		SetCommonErrorResult(&protocol.APIError{})

	return &Client{http: c}
}

// Manifest posts the client's file manifest and returns the server's
// diff decision, per spec.md §4.3/§4.4.
func (c *Client) Manifest(ctx context.Context, req *protocol.ManifestRequest) (*protocol.DiffResponse, error) {
	var resp protocol.DiffResponse
	apiResp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetSuccessResult(&resp).
		Post(pathManifest)
	if err := handleAPIError(apiResp, err, "post manifest"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadChunk PUTs one chunk of an in-flight upload session, per
// spec.md §4.5/§6. body is the chunk's full bytes; chunks are bounded by
// ChunkSize (default 8 MiB, spec.md §6) so buffering one in memory is
// cheap relative to a streaming transfer.
func (c *Client) UploadChunk(ctx context.Context, datasetID, clientID, pathToken, uploadID string, index int, body []byte) error {
	url := fmt.Sprintf("/api/sync/files/%s/uploads/%s/chunks/%d", pathToken, uploadID, index)
	apiResp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("datasetId", datasetID).
		SetQueryParam("clientId", clientID).
		SetBody(body).
		Put(url)
	return handleAPIError(apiResp, err, "put chunk")
}

// CompleteUpload finalizes an upload session, per spec.md §4.6.
func (c *Client) CompleteUpload(ctx context.Context, pathToken, uploadID string, body *protocol.CompleteRequest) error {
	url := fmt.Sprintf("/api/sync/files/%s/uploads/%s/complete", pathToken, uploadID)
	apiResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	return handleAPIError(apiResp, err, "complete upload")
}

// Delete requests removal of the given paths, per spec.md §4.7.
func (c *Client) Delete(ctx context.Context, body *protocol.DeleteRequest) error {
	apiResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(pathDelete)
	return handleAPIError(apiResp, err, "delete")
}
