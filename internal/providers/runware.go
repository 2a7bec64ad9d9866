package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const runwareEndpoint = "https://api.runware.ai/v1/tasks"

// RunwareClient は Runware の画像生成APIクライアントです。
// 1リクエストで複数プロンプトをバッチ投入できます。
type RunwareClient struct {
	APIKey     string
	HTTPClient *http.Client
}

// NewRunwareClient は RunwareClient を作成します。
func NewRunwareClient(apiKey string) *RunwareClient {
	return &RunwareClient{
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 180 * time.Second},
	}
}

type runwareTask struct {
	TaskType       string `json:"taskType"`
	TaskUUID       string `json:"taskUUID"`
	PositivePrompt string `json:"positivePrompt"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	NumberResults  int    `json:"numberResults"`
	OutputType     string `json:"outputType"`
	OutputFormat   string `json:"outputFormat"`
}

type runwareResponse struct {
	Data []struct {
		TaskUUID string `json:"taskUUID"`
		ImageURL string `json:"imageURL"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GenerateImages はプロンプトごとに1枚ずつ画像を生成し、URLをプロンプト順で
// 返します。一部のタスクだけが失敗した場合は成功分のみを返します。
func (c *RunwareClient) GenerateImages(ctx context.Context, prompts []string) ([]string, error) {
	if len(prompts) == 0 {
		return nil, nil
	}

	tasks := make([]runwareTask, len(prompts))
	taskIDs := make([]string, len(prompts))
	for i, prompt := range prompts {
		id := uuid.NewString()
		taskIDs[i] = id
		tasks[i] = runwareTask{
			TaskType:       "imageInference",
			TaskUUID:       id,
			PositivePrompt: prompt,
			Model:          "runware:100@1",
			Width:          1024,
			Height:         576,
			Steps:          4,
			NumberResults:  1,
			OutputType:     "URL",
			OutputFormat:   "JPG",
		}
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, runwareEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image generation returned status %d: %s", resp.StatusCode, detail)
	}

	var parsed runwareResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode image generation response: %w", err)
	}

	// タスクUUIDで突き合わせてプロンプト順に並べ直す
	byTask := make(map[string]string, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.ImageURL != "" {
			byTask[item.TaskUUID] = item.ImageURL
		}
	}
	urls := make([]string, 0, len(prompts))
	for _, id := range taskIDs {
		if url, ok := byTask[id]; ok {
			urls = append(urls, url)
		}
	}
	return urls, nil
}
