package video

// 音声長が得られない場合の読み上げ速度の想定値（語/秒）。
const fallbackWordsPerSecond = 2.5

// AllocateDurations は各断片の語数に比例して総時間 total（秒）を配分します。
// 浮動小数点の丸め誤差は末尾要素が吸収するため、合計は常に total と一致します。
// 総語数が 0 の場合は均等割りへフォールバックします。
func AllocateDurations(chunks []TranscriptChunk, total float64) []float64 {
	n := len(chunks)
	if n == 0 || total <= 0 {
		return nil
	}

	totalWords := 0
	for _, c := range chunks {
		totalWords += c.Words
	}

	durations := make([]float64, n)
	if totalWords == 0 {
		equal := total / float64(n)
		for i := range durations {
			durations[i] = equal
		}
		durations[n-1] = total - equal*float64(n-1)
		return durations
	}

	var sum float64
	for i := 0; i < n-1; i++ {
		durations[i] = total * float64(chunks[i].Words) / float64(totalWords)
		sum += durations[i]
	}
	durations[n-1] = total - sum
	return durations
}

// EstimateDuration は総語数から音声長を推定します（劣化モード）。
// TTSコラボレーターが長さを返せなかった場合にのみ使用し、
// ジョブメッセージで推定値であることを明示します。
func EstimateDuration(totalWords int) float64 {
	if totalWords <= 0 {
		return 1
	}
	d := float64(totalWords) / fallbackWordsPerSecond
	if d < 1 {
		d = 1
	}
	return d
}
