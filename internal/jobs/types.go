package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal は終端状態かどうかを返します。終端状態のレコードは以後変更されません。
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// パイプラインの各ステージ名。進捗レンジとともにレコードへ記録されます。
const (
	StageQueued            = "queued"
	StageGeneratingText    = "generating_text"
	StageSynthesizingAudio = "synthesizing_audio"
	StageSourcingImages    = "sourcing_images"
	StageDownloadingImages = "downloading_images"
	StageRendering         = "rendering"
	StageCompleted         = "completed"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultInfo は完了したジョブの成果物参照を保持します。
type ResultInfo struct {
	VideoURL    string   `json:"videoUrl"`
	AudioURL    string   `json:"audioUrl"`
	SubtitleURL string   `json:"subtitleUrl"`
	Script      string   `json:"script,omitempty"`
	Duration    float64  `json:"duration"`
	ImagesUsed  []string `json:"imagesUsed,omitempty"`
	// EstimatedDuration は音声長が実測できず推定値で代用したことを示します。
	EstimatedDuration bool `json:"estimatedDuration,omitempty"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID           string       `json:"jobId"`
	Status          Status       `json:"status"`
	Progress        ProgressInfo `json:"progress"`
	Result          *ResultInfo  `json:"result,omitempty"`
	Error           *ErrorInfo   `json:"error,omitempty"`
	CancelRequested bool         `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	ExpiresAt       time.Time    `json:"expiresAt"`
}
