// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq用Redis接続URL
	WorkerConcurrency int    // 同時に実行する動画生成ジョブ数
	JobExpireMinutes  int    // ジョブレコードとワークスペースの有効期限（分）
	JobResultBaseURL  string // 成果物取得用のベースURL（省略時は /api/jobs/... を使用）

	// ワークスペース設定
	WorkDir string // ジョブごとの作業ディレクトリのルート

	// 動画合成設定
	FFmpegPath           string  // ffmpeg実行ファイルのパス
	FFprobePath          string  // ffprobe実行ファイルのパス
	RenderTimeoutSeconds int     // コンポジタのウォールクロック上限（秒）
	MaxImages            int     // 1本の動画に使用する画像の最大枚数
	SecondsPerImage      float64 // 画像1枚あたりの目安表示秒数（枚数決定に使用）
	TransitionSeconds    float64 // クロスフェードの基準長（秒）
	DownloadConcurrency  int     // 画像ダウンロードの同時実行数
	SubtitleLeadSeconds  float64 // 先頭字幕の遅延（秒）

	// 外部コラボレーター設定
	AzureOpenAIEndpoint   string // Azure OpenAIエンドポイント
	AzureOpenAIKey        string // Azure OpenAI APIキー
	AzureOpenAIDeployment string // チャット補完のデプロイメント名
	AzureOpenAIAPIVersion string // Azure OpenAI APIバージョン
	AzureSpeechKey        string // Azure Speech APIキー
	AzureSpeechRegion     string // Azure Speechリージョン
	DefaultVoice          string // 音声合成のデフォルトボイス
	RunwareAPIKey         string // Runware（AI画像生成）APIキー
	PexelsAPIKey          string // Pexels（ストック画像検索）APIキー
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// ジョブ/キュー設定
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 3),
		JobExpireMinutes:  getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
		JobResultBaseURL:  getEnv("JOB_RESULT_BASE_URL", ""),

		// ワークスペース設定
		WorkDir: getEnv("WORK_DIR", filepath.Join(os.TempDir(), "tale-forge")),

		// 動画合成設定
		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          getEnv("FFPROBE_PATH", "ffprobe"),
		RenderTimeoutSeconds: getEnvAsInt("RENDER_TIMEOUT_SECONDS", 600),
		MaxImages:            getEnvAsInt("MAX_IMAGES", 8),
		SecondsPerImage:      getEnvAsFloat("SECONDS_PER_IMAGE", 10),
		TransitionSeconds:    getEnvAsFloat("TRANSITION_SECONDS", 1.0),
		DownloadConcurrency:  getEnvAsInt("DOWNLOAD_CONCURRENCY", 4),
		SubtitleLeadSeconds:  getEnvAsFloat("SUBTITLE_LEAD_SECONDS", 2.5),

		// 外部コラボレーター設定
		AzureOpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIKey:        getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o-mini"),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		AzureSpeechKey:        getEnv("AZURE_SPEECH_KEY", ""),
		AzureSpeechRegion:     getEnv("AZURE_SPEECH_REGION", ""),
		DefaultVoice:          getEnv("DEFAULT_VOICE", "en-US-JennyNeural"),
		RunwareAPIKey:         getEnv("RUNWARE_API_KEY", ""),
		PexelsAPIKey:          getEnv("PEXELS_API_KEY", ""),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではコラボレーターのキーは任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.AzureOpenAIEndpoint == "" || c.AzureOpenAIKey == "" {
			return fmt.Errorf("AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY are required in release mode")
		}
		if c.AzureSpeechKey == "" || c.AzureSpeechRegion == "" {
			return fmt.Errorf("AZURE_SPEECH_KEY and AZURE_SPEECH_REGION are required in release mode")
		}
		if c.RunwareAPIKey == "" && c.PexelsAPIKey == "" {
			return fmt.Errorf("RUNWARE_API_KEY or PEXELS_API_KEY is required in release mode")
		}
		if c.FFmpegPath == "" {
			return fmt.Errorf("FFMPEG_PATH is required in release mode")
		}
	}

	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 3
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 8
	}
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = 4
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
