package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const pexelsEndpoint = "https://api.pexels.com/v1/search"

// PexelsClient はストック写真検索APIのクライアントです。
// 生成系プロバイダーが使えない場合のフォールバックとして使います。
type PexelsClient struct {
	APIKey     string
	HTTPClient *http.Client
}

// NewPexelsClient は PexelsClient を作成します。
func NewPexelsClient(apiKey string) *PexelsClient {
	return &PexelsClient{
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Landscape string `json:"landscape"`
			Large     string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// SearchImages はクエリに一致する横長写真のURLを最大 count 件返します。
func (c *PexelsClient) SearchImages(ctx context.Context, query string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	endpoint := pexelsEndpoint + "?" + url.Values{
		"query":       {query},
		"per_page":    {strconv.Itoa(count)},
		"orientation": {"landscape"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image search returned status %d: %s", resp.StatusCode, detail)
	}

	var parsed pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode image search response: %w", err)
	}

	urls := make([]string, 0, count)
	for _, photo := range parsed.Photos {
		src := photo.Src.Landscape
		if src == "" {
			src = photo.Src.Large
		}
		if src != "" {
			urls = append(urls, src)
		}
		if len(urls) == count {
			break
		}
	}
	return urls, nil
}
