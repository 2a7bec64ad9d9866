package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	outputWidth  = 1920
	outputHeight = 1080
	outputFPS    = 30
	// ズーム演出の最大倍率
	kenBurnsMaxZoom = 1.15
	// 診断用に保持するコンポジタ標準エラー出力の上限
	maxDiagnosticBytes = 2000
)

// Compositor は外部エンコーダー1回分の呼び出しを実行します。
// onProgress には処理済み時間の割合（0.0〜1.0）が渡されます。
type Compositor interface {
	Render(ctx context.Context, req *RenderRequest, onProgress func(frac float64)) error
}

// Prober はメディアファイルの実時間長（秒）を計測します。
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFmpeg は ffmpeg / ffprobe による Compositor / Prober 実装です。
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

// NewFFmpeg は FFmpeg を作成します。
func NewFFmpeg(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Timeout:     timeout,
	}
}

// Render は RenderRequest から単一の ffmpeg 呼び出しを構築して実行します。
// 呼び出し内容は入力のみで完全に決まります。標準エラー出力の
// "time=HH:MM:SS.cc" マーカーを逐次読み取り、音声長に対する割合として
// 1パーセントポイントにつき最大1回 onProgress へ通知します。
// 非0終了は RENDER_ERROR、ウォールクロック超過は RENDER_TIMEOUT です。再試行はしません。
func (f *FFmpeg) Render(ctx context.Context, req *RenderRequest, onProgress func(frac float64)) error {
	if req == nil || req.Timeline == nil || len(req.Timeline.Segments) == 0 {
		return newError(CodeInternal, "レンダリング対象のタイムラインがありません", nil)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := buildRenderArgs(req)
	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return newError(CodeInternal, "コンポジタの出力取得に失敗しました", err)
	}
	if err := cmd.Start(); err != nil {
		return newError(CodeRenderError, "コンポジタの起動に失敗しました", err)
	}

	var diagnostic bytes.Buffer
	lastPercent := -1
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCompositorLines)
	for scanner.Scan() {
		line := scanner.Text()
		appendDiagnostic(&diagnostic, line)

		processed, ok := parseProgressTime(line)
		if !ok || req.AudioDuration <= 0 {
			continue
		}
		frac := processed / req.AudioDuration
		if frac > 1 {
			frac = 1
		}
		if pct := int(frac * 100); pct > lastPercent {
			lastPercent = pct
			if onProgress != nil {
				onProgress(frac)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return newError(CodeRenderTimeout, "コンポジタが制限時間内に完了しませんでした", err)
		}
		return newError(CodeRenderError,
			fmt.Sprintf("コンポジタが異常終了しました: %s", truncateDiagnostic(diagnostic.String())), err)
	}
	return nil
}

// Duration は ffprobe でメディアの実時間長を計測します。
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return duration, nil
}

// buildRenderArgs は ffmpeg の引数列を構築します。
// 各画像はクリップ長分ループ再生される入力となり、最後にナレーション音声が続きます。
func buildRenderArgs(req *RenderRequest) []string {
	segments := req.Timeline.Segments
	args := []string{"-y", "-hide_banner"}
	for _, seg := range segments {
		args = append(args,
			"-loop", "1",
			"-t", formatSeconds(seg.ClipLength),
			"-i", seg.Image.LocalPath,
		)
	}
	args = append(args, "-i", req.AudioPath)

	args = append(args,
		"-filter_complex", buildFilterGraph(req).String(),
		"-map", "[vout]",
		"-map", fmt.Sprintf("%d:a", len(segments)),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(outputFPS),
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", formatSeconds(req.AudioDuration),
		req.OutputPath,
	)
	return args
}

// buildFilterGraph はタイムラインをフィルタグラフへ変換します。
// 画像ごとに scale/crop/zoompan を適用し、xfade を数珠つなぎにして
// 最後に字幕の焼き込みを行います。
func buildFilterGraph(req *RenderRequest) *FilterGraph {
	segments := req.Timeline.Segments
	graph := &FilterGraph{}

	for i, seg := range segments {
		graph.Add(FilterNode{
			Inputs: []string{fmt.Sprintf("%d:v", i)},
			Filters: []Filter{
				{Name: "scale", Args: []FilterArg{
					{Value: strconv.Itoa(outputWidth)},
					{Value: strconv.Itoa(outputHeight)},
					{Key: "force_original_aspect_ratio", Value: "increase"},
				}},
				{Name: "crop", Args: []FilterArg{
					{Value: strconv.Itoa(outputWidth)},
					{Value: strconv.Itoa(outputHeight)},
				}},
				{Name: "setsar", Args: []FilterArg{{Value: "1"}}},
				zoompanFilter(seg.Motion),
			},
			Outputs: []string{fmt.Sprintf("v%d", i)},
		})
	}

	last := "v0"
	for k := 1; k < len(segments); k++ {
		joint := segments[k-1]
		out := fmt.Sprintf("x%d", k)
		graph.Add(FilterNode{
			Inputs: []string{last, fmt.Sprintf("v%d", k)},
			Filters: []Filter{
				{Name: "xfade", Args: []FilterArg{
					{Key: "transition", Value: "fade"},
					{Key: "duration", Value: formatSeconds(joint.FadeDuration)},
					{Key: "offset", Value: formatSeconds(joint.FadeOffset)},
				}},
			},
			Outputs: []string{out},
		})
		last = out
	}

	final := FilterNode{
		Inputs:  []string{last},
		Outputs: []string{"vout"},
	}
	if req.SubtitlePath != "" {
		final.Filters = append(final.Filters, Filter{
			Name: "subtitles",
			Args: []FilterArg{
				{Key: "filename", Value: escapeFilterPath(req.SubtitlePath)},
				{Key: "force_style", Value: "'FontSize=22,PrimaryColour=&H00FFFFFF,OutlineColour=&H80000000,Outline=2,Shadow=0,MarginV=40'"},
			},
		})
	}
	final.Filters = append(final.Filters, Filter{
		Name: "format",
		Args: []FilterArg{{Value: "yuv420p"}},
	})
	graph.Add(final)

	return graph
}

func zoompanFilter(motion KenBurns) Filter {
	zoomExpr := fmt.Sprintf("'min(zoom+%s,%s)'",
		formatZoomRate(motion.ZoomRate), formatSeconds(kenBurnsMaxZoom))
	if motion.Direction == "out" {
		zoomExpr = fmt.Sprintf("'max(%s-%s*on,1.0)'",
			formatSeconds(kenBurnsMaxZoom), formatZoomRate(motion.ZoomRate))
	}
	return Filter{
		Name: "zoompan",
		Args: []FilterArg{
			{Key: "z", Value: zoomExpr},
			{Key: "x", Value: "'iw/2-(iw/zoom/2)'"},
			{Key: "y", Value: "'ih/2-(ih/zoom/2)'"},
			{Key: "d", Value: "1"},
			{Key: "s", Value: fmt.Sprintf("%dx%d", outputWidth, outputHeight)},
			{Key: "fps", Value: strconv.Itoa(outputFPS)},
		},
	}
}

// ffmpeg は進捗行を CR で上書きするため、改行と CR の両方で行を切り出す。
func scanCompositorLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var progressTimePattern = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})\.(\d+)`)

// parseProgressTime は進捗行から処理済み時間（秒）を取り出します。
func parseProgressTime(line string) (float64, bool) {
	m := progressTimePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	frac, _ := strconv.ParseFloat("0."+m[4], 64)
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + frac, true
}

func appendDiagnostic(buf *bytes.Buffer, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	buf.WriteString(line)
	buf.WriteString("\n")
	// 末尾側を優先して保持する
	if buf.Len() > 4*maxDiagnosticBytes {
		data := buf.Bytes()
		trimmed := append([]byte(nil), data[len(data)-2*maxDiagnosticBytes:]...)
		buf.Reset()
		buf.Write(trimmed)
	}
}

func truncateDiagnostic(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDiagnosticBytes {
		return s
	}
	return "..." + s[len(s)-maxDiagnosticBytes:]
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatZoomRate(v float64) string {
	if v <= 0 {
		v = kenBurnsZoomRate
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
