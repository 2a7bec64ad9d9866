package video

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const (
	minCueSeconds = 1.5
	maxCueSeconds = 6.0
	// フレーズ間ポーズ: 短文は0.2秒、長文は0.3秒
	shortPauseSeconds    = 0.2
	longPauseSeconds     = 0.3
	longPhraseCharsPause = 40
	// 1行の最大表示幅。超える場合は中央に最も近い語境界で2行へ折り返す
	maxLineChars = 42
)

// BuildCues はフレーズ列を総時間 total（秒）へ割り付け、重ならず単調増加する
// 字幕キュー列を返します。各キューの長さは全体の読み上げ速度から求め、
// [1.5s, 6.0s] に制限します。合計が収まらない場合は全体を一律に縮めます。
// lead は音声開始の遅延を吸収する先頭オフセットで、割付可能時間から差し引かれます。
// キューが total を超えることはありません。
func BuildCues(phrases []string, total float64, lead float64) []SubtitleCue {
	if len(phrases) == 0 || total <= 0 {
		return nil
	}

	if lead < 0 || lead >= total {
		lead = 0
	}
	avail := total - lead

	totalWords := 0
	for _, p := range phrases {
		totalWords += countWords(p)
	}
	if totalWords == 0 {
		return nil
	}
	rate := float64(totalWords) / avail // 語/秒

	durations := make([]float64, len(phrases))
	pauses := make([]float64, len(phrases))
	var sum float64
	for i, p := range phrases {
		d := float64(countWords(p)) / rate
		if d < minCueSeconds {
			d = minCueSeconds
		}
		if d > maxCueSeconds {
			d = maxCueSeconds
		}
		durations[i] = d
		sum += d

		if i < len(phrases)-1 {
			pause := shortPauseSeconds
			if len(p) > longPhraseCharsPause {
				pause = longPauseSeconds
			}
			pauses[i] = pause
			sum += pause
		}
	}

	// 制限後の合計が収まらない場合は一律に縮めて収める
	if sum > avail {
		scale := avail / sum
		for i := range durations {
			durations[i] *= scale
			pauses[i] *= scale
		}
	}

	cues := make([]SubtitleCue, 0, len(phrases))
	start := lead
	for i, p := range phrases {
		if start >= total {
			break
		}
		end := start + durations[i]
		if end > total {
			end = total
		}
		if end <= start {
			break
		}
		cues = append(cues, SubtitleCue{
			Start: start,
			End:   end,
			Text:  p,
		})
		start = end + pauses[i]
	}
	return cues
}

// WriteSRT はキュー列を SubRip 形式で書き出します。
// 形式: 連番、"HH:MM:SS,mmm --> HH:MM:SS,mmm"、テキスト、空行。
func WriteSRT(w io.Writer, cues []SubtitleCue) error {
	for i, cue := range cues {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatSRTTime(cue.Start),
			formatSRTTime(cue.End),
			wrapCueText(cue.Text),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteSRTFile はキュー列をファイルへ書き出します。
func WriteSRTFile(path string, cues []SubtitleCue) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteSRT(file, cues)
}

func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(math.Round(seconds * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// wrapCueText は1行に収まらないテキストを中央に最も近い語境界で
// 2行へ折り返します。タイミングには影響しない表示上の処理です。
func wrapCueText(text string) string {
	if len(text) <= maxLineChars {
		return text
	}
	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	mid := len(text) / 2
	bestIdx := 1
	bestDist := len(text)
	pos := 0
	for i := 0; i < len(words)-1; i++ {
		pos += len(words[i]) + 1
		dist := pos - mid
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			bestIdx = i + 1
		}
	}
	return strings.Join(words[:bestIdx], " ") + "\n" + strings.Join(words[bestIdx:], " ")
}
