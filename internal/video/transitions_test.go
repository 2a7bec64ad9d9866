package video

import (
	"math"
	"testing"
)

func testImages(n int) []ImageAsset {
	images := make([]ImageAsset, n)
	for i := range images {
		images[i] = ImageAsset{Index: i, LocalPath: "/tmp/img.jpg"}
	}
	return images
}

func TestBuildTimelineSingleImage(t *testing.T) {
	spec, err := BuildTimeline(testImages(1), []float64{42.5}, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	if len(spec.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(spec.Segments))
	}
	seg := spec.Segments[0]
	if seg.ClipLength != 42.5 || seg.Duration != 42.5 {
		t.Fatalf("unexpected segment: %#v", seg)
	}
	if seg.FadeDuration != 0 || seg.FadeOffset != 0 {
		t.Fatalf("single segment must not fade: %#v", seg)
	}
	if spec.Total != 42.5 {
		t.Fatalf("total = %f, want 42.5", spec.Total)
	}
}

func TestBuildTimelineOffsetsMatchDurations(t *testing.T) {
	durations := []float64{10, 8, 12, 6}
	fade := 1.0
	spec, err := BuildTimeline(testImages(4), durations, fade)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}

	// フェード k のオフセットは Σ_{j<=k} d_j - T_k
	var elapsed float64
	for k := 0; k < 3; k++ {
		elapsed += durations[k]
		seg := spec.Segments[k]
		want := elapsed - seg.FadeDuration
		if math.Abs(seg.FadeOffset-want) > timeEpsilon {
			t.Fatalf("fade %d offset = %f, want %f", k, seg.FadeOffset, want)
		}
	}

	// 合成結果の長さは常に表示時間の合計と一致する
	var total float64
	for _, d := range durations {
		total += d
	}
	if math.Abs(spec.Total-total) > timeEpsilon {
		t.Fatalf("total = %f, want %f", spec.Total, total)
	}
}

func TestBuildTimelineOffsetsStrictlyIncreasing(t *testing.T) {
	durations := []float64{5, 7, 4, 9, 6}
	spec, err := BuildTimeline(testImages(5), durations, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	prev := -1.0
	for k := 0; k < len(durations)-1; k++ {
		offset := spec.Segments[k].FadeOffset
		if offset < 0 {
			t.Fatalf("fade %d has negative offset %f", k, offset)
		}
		if offset <= prev {
			t.Fatalf("fade %d offset %f not increasing (prev %f)", k, offset, prev)
		}
		prev = offset
	}
}

func TestBuildTimelineFadeCappedByShortSegment(t *testing.T) {
	// 短いセグメントに挟まれたフェードは短い方の20%まで
	durations := []float64{10, 2, 10}
	spec, err := BuildTimeline(testImages(3), durations, 1.5)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	for k := 0; k < 2; k++ {
		fade := spec.Segments[k].FadeDuration
		if math.Abs(fade-0.4) > timeEpsilon {
			t.Fatalf("fade %d = %f, want 0.4 (20%% of 2s)", k, fade)
		}
	}
}

func TestBuildTimelineClipLengthsCoverFades(t *testing.T) {
	durations := []float64{10, 8, 12}
	spec, err := BuildTimeline(testImages(3), durations, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	// 先頭クリップは割当時間そのまま、以降は前のフェード分だけ延びる
	if math.Abs(spec.Segments[0].ClipLength-10) > timeEpsilon {
		t.Fatalf("clip 0 = %f, want 10", spec.Segments[0].ClipLength)
	}
	if math.Abs(spec.Segments[1].ClipLength-(8+spec.Segments[0].FadeDuration)) > timeEpsilon {
		t.Fatalf("clip 1 = %f", spec.Segments[1].ClipLength)
	}
	if math.Abs(spec.Segments[2].ClipLength-(12+spec.Segments[1].FadeDuration)) > timeEpsilon {
		t.Fatalf("clip 2 = %f", spec.Segments[2].ClipLength)
	}
}

func TestBuildTimelineAlternatesMotion(t *testing.T) {
	spec, err := BuildTimeline(testImages(4), []float64{5, 5, 5, 5}, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	for i, seg := range spec.Segments {
		want := "in"
		if i%2 == 1 {
			want = "out"
		}
		if seg.Motion.Direction != want {
			t.Fatalf("segment %d direction = %q, want %q", i, seg.Motion.Direction, want)
		}
	}
}

func TestBuildTimelineMergesZeroDurationSegments(t *testing.T) {
	// 語が割り当てられなかった断片は表示時間0になる。対応する画像は
	// 除外され、フェード長0がグラフへ渡ることはない。
	durations := []float64{10, 0, 12}
	spec, err := BuildTimeline(testImages(3), durations, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	if len(spec.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(spec.Segments))
	}
	for i, seg := range spec.Segments {
		if seg.Duration < minSegmentSeconds {
			t.Fatalf("segment %d too short: %f", i, seg.Duration)
		}
		if i < len(spec.Segments)-1 && seg.FadeDuration <= 0 {
			t.Fatalf("fade %d has non-positive duration %f", i, seg.FadeDuration)
		}
	}
	if math.Abs(spec.Total-22) > timeEpsilon {
		t.Fatalf("total = %f, want 22", spec.Total)
	}
}

func TestBuildTimelineMergesZeroDurationAtEdges(t *testing.T) {
	// 先頭の0は次のセグメントへ、末尾の0は前のセグメントへ時間ごと移る
	spec, err := BuildTimeline(testImages(3), []float64{0, 10, 0}, 1.0)
	if err != nil {
		t.Fatalf("BuildTimeline returned error: %v", err)
	}
	if len(spec.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(spec.Segments))
	}
	seg := spec.Segments[0]
	if seg.Image.Index != 1 {
		t.Fatalf("kept image index = %d, want 1", seg.Image.Index)
	}
	if math.Abs(seg.ClipLength-10) > timeEpsilon || math.Abs(spec.Total-10) > timeEpsilon {
		t.Fatalf("unexpected timeline: %#v", spec)
	}
}

func TestBuildTimelineValidation(t *testing.T) {
	if _, err := BuildTimeline(nil, nil, 1.0); err == nil {
		t.Fatal("expected error for empty images")
	}
	if _, err := BuildTimeline(testImages(2), []float64{1}, 1.0); err == nil {
		t.Fatal("expected error for length mismatch")
	}
	if _, err := BuildTimeline(testImages(1), []float64{-1}, 1.0); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
