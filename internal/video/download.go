package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// 1枚あたりのダウンロード上限
const maxImageBytes = 20 << 20

// downloadImages は画像URLを並列にダウンロードしてワークスペースへ保存します。
// 個々の失敗はジョブを止めず、成功した画像のみを元の順序で返します。
// 全滅した場合は空スライスを返し、NO_ASSETS の判断は呼び出し側が行います。
func (s *Service) downloadImages(ctx context.Context, ws *workspace, urls []string) []ImageAsset {
	results := make([]*ImageAsset, len(urls))
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.DownloadConcurrency)
	for i, url := range urls {
		i, url := i, url
		group.Go(func() error {
			asset, err := s.downloadImage(gctx, ws, i, url)
			if err != nil {
				s.logger.Printf("job %s: image %d download failed: %v", ws.jobID, i, err)
				return nil
			}
			mu.Lock()
			results[i] = asset
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	// 成功分のみを順序を保って詰め直す
	assets := make([]ImageAsset, 0, len(urls))
	for _, asset := range results {
		if asset == nil {
			continue
		}
		asset.Index = len(assets)
		assets = append(assets, *asset)
	}
	return assets
}

func (s *Service) downloadImage(ctx context.Context, ws *workspace, index int, url string) (*ImageAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds size limit (%d bytes)", maxImageBytes)
	}

	// 拡張子は信用せず、先頭バイトで画像であることを確認する
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("unexpected content type %q", mime.String())
	}

	path := filepath.Join(ws.imagesDir, fmt.Sprintf("image_%03d%s", index, mime.Extension()))
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return nil, err
	}

	return &ImageAsset{
		Index:     index,
		SourceURL: url,
		LocalPath: path,
	}, nil
}
