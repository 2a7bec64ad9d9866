package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/tale-forge/internal/config"
)

// TextGenerator はナレーション原稿を生成するコラボレーターです。
type TextGenerator interface {
	GenerateText(ctx context.Context, subject, topic, language string) (string, error)
}

// SpeechSynthesizer は原稿から音声ファイルを合成するコラボレーターです。
// 戻り値は音声長（秒）で、0 を返した場合は呼び出し側が実測へフォールバックします。
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice, language, outputPath string) (float64, error)
}

// ImageSourcer は画像URLを調達するコラボレーターです。
// prompts は生成系プロバイダー向けの断片別プロンプト、query は検索系の
// フォールバック用クエリです。count 件に満たない結果も許容されます。
type ImageSourcer interface {
	SourceImages(ctx context.Context, prompts []string, query string, count int) ([]string, error)
}

// ProgressReporter はステージ・進捗率・ユーザー向けメッセージを通知します。
type ProgressReporter func(stage string, percent int, message string)

// CancelCheck は取り消し要求の有無を返します。ステージ間の境界で呼ばれます。
type CancelCheck func() bool

// Service は動画生成パイプライン全体を統括するサービスです。
type Service struct {
	cfg        *config.Config
	text       TextGenerator
	speech     SpeechSynthesizer
	images     ImageSourcer
	compositor Compositor
	prober     Prober
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, text TextGenerator, speech SpeechSynthesizer, images ImageSourcer, compositor Compositor, prober Prober, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:        cfg,
		text:       text,
		speech:     speech,
		images:     images,
		compositor: compositor,
		prober:     prober,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// manifest はワークスペースに保存するジョブの入力情報です。
// ワーカープロセスはこれを読み戻してパイプラインを開始します。
type manifest struct {
	JobID     string    `json:"jobId"`
	Request   Request   `json:"request"`
	CreatedAt time.Time `json:"createdAt"`
}

// workspace はジョブ1件分の作業ディレクトリ構成です。
type workspace struct {
	jobID     string
	dir       string
	imagesDir string
	outDir    string
}

func (w *workspace) manifestPath() string { return filepath.Join(w.dir, "manifest.json") }
func (w *workspace) audioPath() string    { return filepath.Join(w.outDir, "narration.mp3") }
func (w *workspace) subtitlePath() string { return filepath.Join(w.outDir, "subtitles.srt") }
func (w *workspace) videoPath() string    { return filepath.Join(w.outDir, "video.mp4") }

func (s *Service) workspaceFor(jobID string) *workspace {
	dir := filepath.Join(s.cfg.WorkDir, jobID)
	return &workspace{
		jobID:     jobID,
		dir:       dir,
		imagesDir: filepath.Join(dir, "images"),
		outDir:    filepath.Join(dir, "out"),
	}
}

// PrepareGenerateJob はジョブのワークスペースを作成し、リクエスト内容を
// マニフェストとして保存します。キュー投入前に呼び出します。
func (s *Service) PrepareGenerateJob(jobID string, req *Request) error {
	ws := s.workspaceFor(jobID)
	for _, dir := range []string{ws.dir, ws.imagesDir, ws.outDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}
	}

	m := manifest{
		JobID:     jobID,
		Request:   *req,
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(ws.manifestPath(), data, 0o640); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (s *Service) loadManifest(jobID string) (*manifest, error) {
	ws := s.workspaceFor(jobID)
	data, err := os.ReadFile(ws.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// DiscardJob はジョブのワークスペースを破棄します。
func (s *Service) DiscardJob(jobID string) {
	ws := s.workspaceFor(jobID)
	if err := os.RemoveAll(ws.dir); err != nil {
		s.logger.Printf("failed to remove workspace for job %s: %v", jobID, err)
	}
}

// scheduleCleanup はジョブの有効期限後にワークスペースを削除します。
func (s *Service) scheduleCleanup(jobID string) {
	expire := time.Duration(s.cfg.JobExpireMinutes) * time.Minute
	time.AfterFunc(expire, func() {
		s.DiscardJob(jobID)
	})
}

// OpenResultFile は成果物（video / audio / subtitles）を開きます。
// 呼び出し側でクローズしてください。存在しない場合は os.ErrNotExist を返します。
func (s *Service) OpenResultFile(jobID, kind string) (*os.File, string, error) {
	if strings.ContainsAny(jobID, "/\\.") {
		return nil, "", os.ErrNotExist
	}
	ws := s.workspaceFor(jobID)

	var path, contentType string
	switch kind {
	case "video":
		path, contentType = ws.videoPath(), "video/mp4"
	case "audio":
		path, contentType = ws.audioPath(), "audio/mpeg"
	case "subtitles":
		path, contentType = ws.subtitlePath(), "application/x-subrip"
	default:
		return nil, "", os.ErrNotExist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return file, contentType, nil
}
