// Package upload sends captured frames to the attendance backend.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/teslashibe/go-attend/internal/httpc"
)

// Wire constants for the upload contract.
const (
	FieldName       = "image"
	ContentTypeJPEG = "image/jpeg"
	HeaderCaptureID = "X-Capture-ID"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20
)

// Request is one captured image to upload.
type Request struct {
	// ID correlates the capture in logs and on the backend.
	ID string

	// Filename is sent as the multipart filename (e.g. capture.jpg).
	Filename string

	// ContentType defaults to image/jpeg.
	ContentType string

	// Data is the encoded image.
	Data []byte
}

// Sender uploads a captured image and returns the backend verdict.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Client posts multipart uploads to a fixed endpoint.
type Client struct {
	endpoint *url.URL
	client   *http.Client
}

// NewClient creates a client for endpoint. A nil httpClient uses httpc.Client.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint: unsupported scheme %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = httpc.Client
	}
	return &Client{endpoint: u, client: httpClient}, nil
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Send posts req as a multipart form with a single "image" part.
// Non-2xx responses return an *APIError; a body without an explicit verdict
// returns ErrAmbiguousResponse.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.ID != "" {
		httpReq.Header.Set(HeaderCaptureID, req.ID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrAmbiguousResponse, err)
	}
	if _, err := out.Matched(); err != nil {
		return nil, err
	}
	out.CaptureID = req.ID
	return &out, nil
}

func encodeMultipart(req Request) (*bytes.Buffer, string, error) {
	if len(req.Data) == 0 {
		return nil, "", fmt.Errorf("upload: empty image")
	}
	filename := req.Filename
	if filename == "" {
		filename = "capture.jpg"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentTypeJPEG
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// CreateFormFile forces application/octet-stream, so build the header by hand
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldName, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
