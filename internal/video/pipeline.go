package video

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// ジョブ進捗のステージ別レンジ（%）
const (
	bandTextStart     = 0
	bandAudioStart    = 20
	bandImagesStart   = 40
	bandDownloadStart = 60
	bandRenderStart   = 80
	bandRenderCeiling = 99

	stageText     = "generating_text"
	stageAudio    = "synthesizing_audio"
	stageImages   = "sourcing_images"
	stageDownload = "downloading_images"
	stageRender   = "rendering"
)

// RunJob はジョブ1件のパイプラインを最初から最後まで実行します。
// 原稿生成、音声合成、画像調達、ダウンロード、レンダリングの順に進み、
// 各ステージ境界で cancelled を確認します。取り消し要求があった場合は
// ErrCancelled を返し、それ以外の失敗は *Error（コード付き）で返します。
// 進捗は reporter 経由で通知されます。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter, cancelled CancelCheck) (*Result, error) {
	if reporter == nil {
		reporter = func(string, int, string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	m, err := s.loadManifest(jobID)
	if err != nil {
		return nil, newError(CodeInternal, "ジョブ情報の読み込みに失敗しました", err)
	}
	ws := s.workspaceFor(jobID)

	result, err := s.runPipeline(ctx, ws, &m.Request, reporter, cancelled)
	if err != nil {
		s.DiscardJob(jobID)
		return nil, err
	}
	result.JobID = jobID
	s.scheduleCleanup(jobID)
	return result, nil
}

func (s *Service) runPipeline(ctx context.Context, ws *workspace, req *Request, reporter ProgressReporter, cancelled CancelCheck) (*Result, error) {
	// ステージ1: 原稿生成
	if cancelled() {
		return nil, ErrCancelled
	}
	reporter(stageText, bandTextStart, "ストーリー原稿を生成しています...")

	script, err := s.text.GenerateText(ctx, req.Subject, req.Topic, req.Language)
	if err != nil {
		return nil, newError(CodeUpstream, "原稿の生成に失敗しました", err)
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, newError(CodeUpstream, "原稿生成プロバイダーが空の応答を返しました", nil)
	}
	s.logger.Printf("job %s: generated script (%d chars)", ws.jobID, len(script))

	// ステージ2: 音声合成
	if cancelled() {
		return nil, ErrCancelled
	}
	reporter(stageAudio, bandAudioStart, "ナレーション音声を合成しています...")

	voice := req.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	duration, err := s.speech.Synthesize(ctx, script, voice, req.Language, ws.audioPath())
	if err != nil {
		return nil, newError(CodeUpstream, "音声の合成に失敗しました", err)
	}

	estimated := false
	if duration <= 0 {
		duration, err = s.prober.Duration(ctx, ws.audioPath())
		if err != nil || duration <= 0 {
			// 実測も不可能な場合は語数からの推定で続行する（劣化モード）
			duration = EstimateDuration(countWords(script))
			estimated = true
			s.logger.Printf("job %s: audio duration unavailable, estimated %.1fs", ws.jobID, duration)
		}
	}

	// ステージ3: 画像調達
	if cancelled() {
		return nil, ErrCancelled
	}
	reporter(stageImages, bandImagesStart, "シーンに合わせた画像を調達しています...")

	imageCount := clampImageCount(duration/s.cfg.SecondsPerImage, s.cfg.MaxImages)
	chunks := SplitChunks(script, imageCount)
	prompts := buildImagePrompts(req, chunks)

	urls, err := s.images.SourceImages(ctx, prompts, imageQuery(req), imageCount)
	if err != nil {
		return nil, newError(CodeUpstream, "画像の調達に失敗しました", err)
	}
	if len(urls) == 0 {
		return nil, newError(CodeNoAssets, "利用できる画像が1枚も見つかりませんでした", nil)
	}

	// ステージ4: 画像ダウンロード
	if cancelled() {
		return nil, ErrCancelled
	}
	reporter(stageDownload, bandDownloadStart, "画像をダウンロードしています...")

	assets := s.downloadImages(ctx, ws, urls)
	if len(assets) == 0 {
		return nil, newError(CodeNoAssets, "画像のダウンロードに全て失敗しました", nil)
	}

	// ダウンロードに成功した枚数でタイムラインを引き直す
	chunks = SplitChunks(script, len(assets))
	durations := AllocateDurations(chunks, duration)
	timeline, err := BuildTimeline(assets, durations, s.cfg.TransitionSeconds)
	if err != nil {
		return nil, err
	}

	phrases := SplitPhrases(script)
	cues := BuildCues(phrases, duration, s.cfg.SubtitleLeadSeconds)
	if err := WriteSRTFile(ws.subtitlePath(), cues); err != nil {
		return nil, newError(CodeInternal, "字幕ファイルの書き出しに失敗しました", err)
	}

	// ステージ5: レンダリング
	if cancelled() {
		return nil, ErrCancelled
	}
	reporter(stageRender, bandRenderStart, "動画をレンダリングしています...")

	renderReq := &RenderRequest{
		AudioPath:     ws.audioPath(),
		AudioDuration: duration,
		Timeline:      timeline,
		SubtitlePath:  ws.subtitlePath(),
		OutputPath:    ws.videoPath(),
	}
	err = s.compositor.Render(ctx, renderReq, func(frac float64) {
		percent := bandRenderStart + int(frac*float64(100-bandRenderStart))
		if percent > bandRenderCeiling {
			percent = bandRenderCeiling
		}
		reporter(stageRender, percent, "動画をレンダリングしています...")
	})
	if err != nil {
		return nil, err
	}

	imagesUsed := make([]string, len(assets))
	for i, asset := range assets {
		imagesUsed[i] = asset.SourceURL
	}

	result := &Result{
		VideoPath:         ws.videoPath(),
		AudioPath:         ws.audioPath(),
		SubtitlePath:      ws.subtitlePath(),
		Script:            script,
		Duration:          duration,
		ImagesUsed:        imagesUsed,
		EstimatedDuration: estimated,
	}
	return result, nil
}

// clampImageCount は音声長から画像枚数を決めます（最小1枚、最大 max 枚）。
func clampImageCount(raw float64, max int) int {
	n := int(math.Round(raw))
	if n < 1 {
		n = 1
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// buildImagePrompts は断片ごとに生成系プロバイダー向けのプロンプトを作ります。
func buildImagePrompts(req *Request, chunks []TranscriptChunk) []string {
	prompts := make([]string, len(chunks))
	for i, chunk := range chunks {
		text := chunk.Text
		if len(text) > 300 {
			text = text[:300]
		}
		prompts[i] = fmt.Sprintf("Illustration for a narrated story about %s, %s. Scene: %s",
			req.Subject, req.Topic, text)
	}
	return prompts
}

// imageQuery は検索系フォールバック用のクエリを作ります。
func imageQuery(req *Request) string {
	return strings.TrimSpace(req.Subject + " " + req.Topic)
}
