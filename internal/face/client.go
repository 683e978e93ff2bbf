package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"presence/internal/liveness"
	dErrors "presence/pkg/domain-errors"
)

// HTTPClient implements Analyzer by calling an external face analysis sidecar.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Ensure HTTPClient implements Analyzer
var _ Analyzer = (*HTTPClient)(nil)

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a new HTTP-based face analyzer client.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// analyzeRequest carries the JPEG-encoded frame to the sidecar.
type analyzeRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Count int `json:"count"`
}

type landmarksResponse struct {
	Landmarks [][2]float64 `json:"landmarks"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DetectFaces reports the number of faces the sidecar finds in the frame.
func (c *HTTPClient) DetectFaces(ctx context.Context, img image.Image) (int, error) {
	var out detectResponse
	if err := c.post(ctx, "/v1/faces/detect", img, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// ExtractLandmarks returns the 68-point landmark set for the dominant face.
func (c *HTTPClient) ExtractLandmarks(ctx context.Context, img image.Image) ([]liveness.Point, error) {
	var out landmarksResponse
	if err := c.post(ctx, "/v1/faces/landmarks", img, &out); err != nil {
		return nil, err
	}
	points := make([]liveness.Point, len(out.Landmarks))
	for i, lm := range out.Landmarks {
		points[i] = liveness.Point{X: lm[0], Y: lm[1]}
	}
	return points, nil
}

// ComputeEmbedding returns the identity embedding for the dominant face.
func (c *HTTPClient) ComputeEmbedding(ctx context.Context, img image.Image) ([]float64, error) {
	var out embeddingResponse
	if err := c.post(ctx, "/v1/faces/embedding", img, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// Health probes the sidecar health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create health request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "face service unreachable")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("face service unhealthy: status %d", resp.StatusCode))
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, img image.Image, out any) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode frame")
	}

	reqBody, err := json.Marshal(analyzeRequest{
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "face service request timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeFaceService, "face service request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeFaceService, "failed to read face service response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parse
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return dErrors.New(dErrors.CodeNoFace, errResp.Message)
		}
		return dErrors.New(dErrors.CodeNoFace, "no face detected in frame")
	case http.StatusBadRequest:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return dErrors.New(dErrors.CodeBadRequest, errResp.Message)
		}
		return dErrors.New(dErrors.CodeBadRequest, "face service rejected the frame")
	case http.StatusServiceUnavailable:
		return dErrors.New(dErrors.CodeUnavailable, "face service unavailable")
	default:
		return dErrors.New(dErrors.CodeFaceService, fmt.Sprintf("unexpected face service status: %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeFaceService, "failed to parse face service response")
	}
	return nil
}
