// Package extractor turns stored files and URLs into raw text.
//
// Binary documents go through a vision model on an OpenAI-compatible chat
// endpoint, used as a universal "read this document as text" capability.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"patrasaar-go/internal/config"
)

// The extraction prompt asks for text only, so downstream chunking sees the
// document's own structure rather than model commentary.
const extractionPrompt = "Extract all text from this document image. Preserve the structure, sections, and numbering. Return only the extracted text, nothing else."

// Client is the text-extractor capability.
type Client interface {
	// ExtractDocument reads binary document bytes (pdf/doc/docx) as text.
	ExtractDocument(ctx context.Context, data []byte, fileType string) (string, error)
	// ExtractURL fetches a page and strips markup to plaintext. A non-2xx
	// response is an error.
	ExtractURL(ctx context.Context, url string) (string, error)
}

type visionClient struct {
	cfg    config.ExtractorConfig
	client *http.Client
}

// NewClient creates a vision-model extractor from config.
func NewClient(cfg config.ExtractorConfig) Client {
	return &visionClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *visionClient) ExtractDocument(ctx context.Context, data []byte, fileType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	reqBody := visionRequest{
		Model: c.cfg.Model,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: extractionPrompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:application/octet-stream;base64," + encoded,
					}},
				},
			},
		},
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call extraction api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extraction api returned non-200 status: %s", resp.Status)
	}

	var visionResp visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}
	if len(visionResp.Choices) == 0 {
		return "", errors.New("extraction api returned no choices")
	}
	return visionResp.Choices[0].Message.Content, nil
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func (c *visionClient) ExtractURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create url request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch URL: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read url body: %w", err)
	}

	return StripMarkup(string(body)), nil
}

// StripMarkup removes tags and collapses whitespace.
func StripMarkup(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
