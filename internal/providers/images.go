package providers

import (
	"context"
	"fmt"
	"log"
)

// ImageGenerator はプロンプトから画像を生成するプロバイダーです。
type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompts []string) ([]string, error)
}

// ImageSearcher はクエリで画像を検索するプロバイダーです。
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, count int) ([]string, error)
}

// ImageSource は生成系を優先し、不調時に検索系へフォールバックする
// 合成プロバイダーです。どちらか一方だけの構成でも動作します。
type ImageSource struct {
	generator ImageGenerator
	searcher  ImageSearcher
	logger    *log.Logger
}

// NewImageSource は ImageSource を作成します。generator / searcher は nil 可です。
func NewImageSource(generator ImageGenerator, searcher ImageSearcher, logger *log.Logger) *ImageSource {
	if logger == nil {
		logger = log.Default()
	}
	return &ImageSource{
		generator: generator,
		searcher:  searcher,
		logger:    logger,
	}
}

// SourceImages は画像URLを最大 count 件調達します。生成系が count 件に
// 満たない場合は検索系で不足分を補います。両方とも0件のときだけエラーです。
func (s *ImageSource) SourceImages(ctx context.Context, prompts []string, query string, count int) ([]string, error) {
	var urls []string

	if s.generator != nil && len(prompts) > 0 {
		generated, err := s.generator.GenerateImages(ctx, prompts)
		if err != nil {
			s.logger.Printf("image generation failed, falling back to search: %v", err)
		} else {
			urls = generated
		}
	}

	if len(urls) < count && s.searcher != nil && query != "" {
		found, err := s.searcher.SearchImages(ctx, query, count-len(urls))
		if err != nil {
			s.logger.Printf("image search failed: %v", err)
		} else {
			urls = append(urls, found...)
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no image provider returned any result")
	}
	if len(urls) > count {
		urls = urls[:count]
	}
	return urls, nil
}
