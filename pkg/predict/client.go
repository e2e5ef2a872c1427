package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	logging "github.com/ipfs/go-log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/menta2k/catvsdog/pkg/types"
)

var log = logging.Logger("predict")

// DefaultEndpoint is where the classification service listens by default
const DefaultEndpoint = "http://localhost:8000/predict/"

// DefaultField is the multipart part name carrying the image
const DefaultField = "file"

// maxBody caps how much of a response body is read
const maxBody = 1 << 20

// Client posts images to a classification endpoint as multipart form data
type Client struct {
	endpoint   string
	field      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request. Zero keeps the client default (no timeout).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithField changes the multipart part name
func WithField(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.field = name
		}
	}
}

func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint:   endpoint,
		field:      DefaultField,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Endpoint returns the URL requests are sent to
func (c *Client) Endpoint() string { return c.endpoint }

// Predict uploads file and returns the label from the `prediction` field.
// A nil file still sends a request, with an empty part.
func (c *Client) Predict(ctx context.Context, file *types.File) (string, error) {
	ctx, span := otel.Tracer("catvsdog").Start(ctx, "predict.Predict")
	defer span.End()
	span.SetAttributes(attribute.Int64("file.size", file.Size()))

	body, contentType, err := c.encode(file)
	if err != nil {
		return "", &types.PredictError{Kind: types.KindTransport, Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", &types.PredictError{Kind: types.KindTransport, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &types.PredictError{Kind: types.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", &types.PredictError{Kind: types.KindTransport, Reason: "read response", Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &types.PredictError{
			Kind:       types.KindStatus,
			StatusCode: resp.StatusCode,
			Reason:     strings.TrimSpace(string(raw)),
		}
	}

	return ParseResponse(raw)
}

func (c *Client) encode(file *types.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := ""
	var data []byte
	if file != nil {
		name = file.Name
		if name == "" {
			name = "upload"
		}
		data = file.Data
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.field, name))
	if file != nil {
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
	}

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	log.Debugf("encoded %d byte upload as part %q (filename %q)", len(data), c.field, name)
	return &buf, w.FormDataContentType(), nil
}

// ParseResponse validates a classifier response body and extracts its label
func ParseResponse(raw []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", &types.PredictError{Kind: types.KindDecode, Err: err}
	}

	rawLabel, ok := fields["prediction"]
	if !ok {
		return "", &types.PredictError{Kind: types.KindNoPrediction, Reason: "response has no prediction field"}
	}

	var out types.PredictResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Prediction == nil {
		return "", &types.PredictError{
			Kind:   types.KindNoPrediction,
			Reason: fmt.Sprintf("prediction is not a string: %s", string(rawLabel)),
		}
	}

	return *out.Prediction, nil
}
