package video

import "fmt"

const (
	// クロスフェード長の上限は隣接セグメントの短い方の20%。
	maxFadeRatio = 0.2
	// これより短いセグメントは隣へ併合する。長さ0のセグメントを残すと
	// フェード長も0となり、コンポジタが受け付けない。
	minSegmentSeconds = 0.01
	// Ken Burns効果のズーム速度（1フレームあたりの増分）。
	kenBurnsZoomRate = 0.0008
)

// BuildTimeline は各画像の表示時間からクロスフェード連結のタイムラインを
// 組み立てます。フェード k（セグメント k と k+1 を接続）の出力タイムライン上の
// オフセットは Σ_{j<=k} d_j - T_k で、0 未満には切り詰められます。
// クロスフェードは隣接する両セグメントから時間を消費するため、
// 合成結果の長さは常に Σd_i と一致します。
// n = 1 の場合はフェードを作らず、単一クリップを総時間ちょうどに切り詰めます。
func BuildTimeline(images []ImageAsset, durations []float64, fade float64) (*TimelineSpec, error) {
	n := len(images)
	if n == 0 {
		return nil, newError(CodeInternal, "タイムラインに画像がありません", nil)
	}
	if n != len(durations) {
		return nil, newError(CodeInternal,
			fmt.Sprintf("画像数と表示時間数が一致しません (images=%d durations=%d)", n, len(durations)), nil)
	}

	var total float64
	for i, d := range durations {
		if d < 0 {
			return nil, newError(CodeInternal, fmt.Sprintf("表示時間が負です (index=%d)", i), nil)
		}
		total += d
	}

	images, durations = mergeShortSegments(images, durations)
	n = len(images)

	spec := &TimelineSpec{
		Segments: make([]TimelineSegment, n),
		Total:    total,
	}

	if n == 1 {
		spec.Segments[0] = TimelineSegment{
			Image:      images[0],
			Duration:   total,
			ClipLength: total,
			Motion:     motionFor(0),
		}
		return spec, nil
	}

	// フェード k の長さ: 基準長を隣接セグメントの短い方の20%で制限
	fades := make([]float64, n-1)
	for k := 0; k < n-1; k++ {
		limit := maxFadeRatio * minFloat(durations[k], durations[k+1])
		fades[k] = minFloat(fade, limit)
	}

	var elapsed float64
	for i := 0; i < n; i++ {
		seg := TimelineSegment{
			Image:    images[i],
			Duration: durations[i],
			Motion:   motionFor(i),
		}

		// フェードは前の接続点の重なり分だけクリップ先頭を延ばして賄う
		seg.ClipLength = durations[i]
		if i > 0 {
			seg.ClipLength += fades[i-1]
		}

		if i < n-1 {
			elapsed += durations[i]
			offset := elapsed - fades[i]
			if offset < 0 {
				offset = 0
			}
			seg.FadeOffset = offset
			seg.FadeDuration = fades[i]
		}

		spec.Segments[i] = seg
	}

	return spec, nil
}

// mergeShortSegments は閾値未満のセグメントを隣へ併合します。
// 原稿の断片に語が割り当てられないと表示時間0のセグメントが生じるため
// （画像枚数より語数が少ない場合など）、その時間を隣のセグメントへ移して
// 画像ごと取り除きます。表示時間の合計は変わりません。
func mergeShortSegments(images []ImageAsset, durations []float64) ([]ImageAsset, []float64) {
	n := len(images)
	keptImages := make([]ImageAsset, 0, n)
	keptDurations := make([]float64, 0, n)
	var carry float64
	for i := 0; i < n; i++ {
		d := durations[i] + carry
		carry = 0
		if d < minSegmentSeconds {
			if i < n-1 {
				carry = d
				continue
			}
			if len(keptDurations) > 0 {
				keptDurations[len(keptDurations)-1] += d
				continue
			}
		}
		keptImages = append(keptImages, images[i])
		keptDurations = append(keptDurations, d)
	}
	return keptImages, keptDurations
}

// motionFor はセグメント位置に応じたパン/ズーム効果を返します。
// ズームイン・ズームアウトを交互に適用します（品質面の演出であり、
// タイムラインの整合性には影響しません）。
func motionFor(index int) KenBurns {
	direction := "in"
	if index%2 == 1 {
		direction = "out"
	}
	return KenBurns{
		ZoomRate:  kenBurnsZoomRate,
		Direction: direction,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
