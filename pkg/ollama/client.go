package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/ollama/ollama/api"

	"github.com/menta2k/catvsdog/pkg/labels"
	"github.com/menta2k/catvsdog/pkg/types"
)

var log = logging.Logger("ollama")

// DefaultURL is the Ollama server used when none is configured
const DefaultURL = "http://localhost:11434"

// Client classifies images with an Ollama vision model
type Client struct {
	client     *api.Client
	model      string
	categories []string
}

// NewClient creates a new Ollama classifier
func NewClient(ollamaURL, model string, categories []string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama backend needs a model name")
	}

	// Drop any path like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if len(categories) == 0 {
		categories = labels.DefaultCategories
	}

	return &Client{
		client:     api.NewClient(baseURL, http.DefaultClient),
		model:      model,
		categories: categories,
	}, nil
}

// Predict asks the model which category the image belongs to
func (c *Client) Predict(ctx context.Context, file *types.File) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second) // CPU inference is slow
		defer cancel()
	}

	msg := api.Message{
		Role:    "user",
		Content: labels.Prompt(c.categories),
	}
	if file != nil && len(file.Data) > 0 {
		msg.Images = []api.ImageData{api.ImageData(file.Data)}
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{msg},
		Stream:   &streamFalse,
		Options:  map[string]any{"temperature": 0},
	}

	var reply string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply += resp.Message.Content
		return nil
	})
	if err != nil {
		var se api.StatusError
		if asStatus(err, &se) {
			return "", &types.PredictError{Kind: types.KindStatus, StatusCode: se.StatusCode, Reason: se.ErrorMessage}
		}
		return "", &types.PredictError{Kind: types.KindTransport, Err: err}
	}

	log.Debugf("model %s replied %q", c.model, reply)

	label := labels.Match(reply, c.categories)
	if label == "" {
		return "", &types.PredictError{Kind: types.KindNoPrediction, Reason: fmt.Sprintf("no category in reply %q", reply)}
	}
	return label, nil
}

func asStatus(err error, target *api.StatusError) bool {
	switch e := err.(type) {
	case api.StatusError:
		*target = e
		return true
	case *api.StatusError:
		*target = *e
		return true
	}
	return false
}
