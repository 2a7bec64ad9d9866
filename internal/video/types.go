package video

// Request は動画生成リクエストの内容を表します。
type Request struct {
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Persona  string `json:"persona,omitempty"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// TranscriptChunk はナレーション原稿のうち画像1枚に対応する断片です。
// Index はトランスクリプト・画像・タイムラインの全てで共通の順序を表します。
type TranscriptChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Words int    `json:"words"`
}

// ImageAsset はダウンロード済みの画像素材を表します。
type ImageAsset struct {
	Index     int    `json:"index"`
	SourceURL string `json:"sourceUrl"`
	LocalPath string `json:"localPath"`
}

// SubtitleCue はタイムコード付きの字幕1件です（秒、0 <= Start < End）。
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// KenBurns は画像へ適用するパン/ズーム効果のパラメータです。
type KenBurns struct {
	ZoomRate  float64 `json:"zoomRate"`
	Direction string  `json:"direction"` // "in" または "out"
}

// TimelineSegment はタイムライン上の1画像分の区間です。
// Duration は割当表示時間、ClipLength はフェードの両端を含めた実クリップ長、
// FadeOffset / FadeDuration は次のセグメントへのクロスフェードを表します
// （最終セグメントではともに 0）。
type TimelineSegment struct {
	Image        ImageAsset `json:"image"`
	Duration     float64    `json:"duration"`
	ClipLength   float64    `json:"clipLength"`
	FadeOffset   float64    `json:"fadeOffset"`
	FadeDuration float64    `json:"fadeDuration"`
	Motion       KenBurns   `json:"motion"`
}

// TimelineSpec はクロスフェード連結のタイムライン全体です。
// 合成結果の長さは Total（= 音声の長さ）と一致します。
type TimelineSpec struct {
	Segments []TimelineSegment `json:"segments"`
	Total    float64           `json:"total"`
}

// RenderRequest はコンポジタ1回分の呼び出しを完全に決定する入力です。
type RenderRequest struct {
	AudioPath     string        `json:"audioPath"`
	AudioDuration float64       `json:"audioDuration"`
	Timeline      *TimelineSpec `json:"timeline"`
	SubtitlePath  string        `json:"subtitlePath"`
	OutputPath    string        `json:"outputPath"`
}

// Result は動画生成ジョブの成果を表します。
type Result struct {
	JobID        string   `json:"jobId"`
	VideoPath    string   `json:"videoPath"`
	AudioPath    string   `json:"audioPath"`
	SubtitlePath string   `json:"subtitlePath"`
	Script       string   `json:"script"`
	Duration     float64  `json:"duration"`
	ImagesUsed   []string `json:"imagesUsed"`
	// EstimatedDuration は音声長が実測できず推定値で代用したことを示します。
	EstimatedDuration bool `json:"estimatedDuration,omitempty"`
}
