package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/catvsdog/pkg/labels"
	"github.com/menta2k/catvsdog/pkg/types"
)

// DefaultURL is the llama.cpp server used when none is configured
const DefaultURL = "http://localhost:8080"

type Client struct {
	baseURL    string
	model      string
	categories []string
	httpClient *http.Client
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(serverURL, model string, categories []string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if len(categories) == 0 {
		categories = labels.DefaultCategories
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		model:      model,
		categories: categories,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

func (c *Client) Predict(ctx context.Context, file *types.File) (string, error) {
	content := []ContentPart{
		{
			Type: "text",
			Text: labels.Prompt(c.categories),
		},
	}

	if file != nil && len(file.Data) > 0 {
		mime := file.ContentType
		if mime == "" {
			mime = http.DetectContentType(file.Data)
		}
		content = append(content, ContentPart{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(file.Data),
			},
		})
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		Temperature: 0,
		MaxTokens:   64,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return "", err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &types.PredictError{Kind: types.KindDecode, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &types.PredictError{Kind: types.KindNoPrediction, Reason: "no choices in response"}
	}

	reply := replyText(resp.Choices[0].Message.Content)
	label := labels.Match(reply, c.categories)
	if label == "" {
		return "", &types.PredictError{Kind: types.KindNoPrediction, Reason: fmt.Sprintf("no category in reply %q", reply)}
	}
	return label, nil
}

// replyText handles both string and array content formats
func replyText(content interface{}) string {
	switch content := content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &types.PredictError{Kind: types.KindTransport, Reason: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &types.PredictError{Kind: types.KindTransport, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.PredictError{Kind: types.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.PredictError{Kind: types.KindTransport, Reason: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.PredictError{Kind: types.KindStatus, StatusCode: resp.StatusCode, Reason: string(body)}
	}

	return body, nil
}
