package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AzureOpenAIClient は Azure OpenAI のチャット補完APIでナレーション原稿を生成します。
type AzureOpenAIClient struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	HTTPClient *http.Client
}

// NewAzureOpenAIClient は AzureOpenAIClient を作成します。
func NewAzureOpenAIClient(endpoint, apiKey, deployment, apiVersion string) *AzureOpenAIClient {
	return &AzureOpenAIClient{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIKey:     apiKey,
		Deployment: deployment,
		APIVersion: apiVersion,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText は題材とトピックからナレーション原稿を生成します。
func (c *AzureOpenAIClient) GenerateText(ctx context.Context, subject, topic, language string) (string, error) {
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.Endpoint, c.Deployment, c.APIVersion)

	body := chatCompletionRequest{
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You are a storyteller who writes clear, engaging narration scripts " +
					"for educational slideshow videos. Write plain prose without headings, " +
					"lists or stage directions. Separate scenes with blank lines.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"Write a narration script in %s about %q, focusing on: %s. "+
						"Aim for roughly 250 to 400 words.",
					languageName(language), subject, topic),
			},
		},
		MaxTokens:   1200,
		Temperature: 0.7,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("text generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("text generation returned status %d: %s", resp.StatusCode, detail)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode text generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("text generation returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "English"
	case "ja":
		return "Japanese"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	}
	return code
}
