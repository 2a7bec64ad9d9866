package video

import (
	"strings"
	"testing"
)

func TestBuildCuesShortPhrases(t *testing.T) {
	// 極端に短いフレーズでも最低表示時間は保証される
	cues := BuildCues([]string{"A.", "B.", "C."}, 60, 0)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	for i, cue := range cues {
		d := cue.End - cue.Start
		if d < minCueSeconds-timeEpsilon {
			t.Fatalf("cue %d duration %f below minimum", i, d)
		}
		if d > maxCueSeconds+timeEpsilon {
			t.Fatalf("cue %d duration %f above maximum", i, d)
		}
	}
}

func TestBuildCuesNonOverlappingAndOrdered(t *testing.T) {
	phrases := []string{
		"The morning sun rose over the hills.",
		"Birds began their chorus in the trees.",
		"A river wound its way through the valley below the town.",
		"Everything was quiet.",
	}
	total := 30.0
	cues := BuildCues(phrases, total, 2.5)
	if len(cues) == 0 {
		t.Fatal("expected cues")
	}
	if cues[0].Start < 2.5-timeEpsilon {
		t.Fatalf("first cue starts at %f, want >= 2.5", cues[0].Start)
	}
	for i, cue := range cues {
		if cue.End <= cue.Start {
			t.Fatalf("cue %d has non-positive duration: %#v", i, cue)
		}
		if i > 0 && cue.Start < cues[i-1].End-timeEpsilon {
			t.Fatalf("cue %d overlaps previous: %f < %f", i, cue.Start, cues[i-1].End)
		}
	}
	if last := cues[len(cues)-1]; last.End > total+timeEpsilon {
		t.Fatalf("last cue ends at %f, beyond total %f", last.End, total)
	}
}

func TestBuildCuesRescalesWhenOverLong(t *testing.T) {
	// 最低表示時間の合計が総時間を超える場合は一律に縮めて収める
	phrases := make([]string, 20)
	for i := range phrases {
		phrases[i] = "Short."
	}
	total := 10.0
	cues := BuildCues(phrases, total, 0)
	if len(cues) == 0 {
		t.Fatal("expected cues")
	}
	for i, cue := range cues {
		if cue.End > total+timeEpsilon {
			t.Fatalf("cue %d exceeds total: %#v", i, cue)
		}
		if i > 0 && cue.Start < cues[i-1].End-timeEpsilon {
			t.Fatalf("cue %d overlaps previous", i)
		}
	}
}

func TestBuildCuesInvalidLead(t *testing.T) {
	// 総時間以上のリードは無視される
	cues := BuildCues([]string{"Hello world."}, 5, 10)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Start != 0 {
		t.Fatalf("start = %f, want 0", cues[0].Start)
	}
}

func TestBuildCuesEmpty(t *testing.T) {
	if cues := BuildCues(nil, 10, 0); cues != nil {
		t.Fatalf("expected nil, got %#v", cues)
	}
	if cues := BuildCues([]string{"a"}, 0, 0); cues != nil {
		t.Fatalf("expected nil for zero total, got %#v", cues)
	}
}

func TestWriteSRTFormat(t *testing.T) {
	cues := []SubtitleCue{
		{Start: 0, End: 2.5, Text: "First line."},
		{Start: 3, End: 6.125, Text: "Second line."},
	}
	var b strings.Builder
	if err := WriteSRT(&b, cues); err != nil {
		t.Fatalf("WriteSRT returned error: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,500\nFirst line.\n\n" +
		"2\n00:00:03,000 --> 00:00:06,125\nSecond line.\n\n"
	if b.String() != want {
		t.Fatalf("unexpected SRT output:\n%q\nwant:\n%q", b.String(), want)
	}
}

func TestFormatSRTTimeHourRollover(t *testing.T) {
	if got := formatSRTTime(3661.042); got != "01:01:01,042" {
		t.Fatalf("formatSRTTime = %q, want 01:01:01,042", got)
	}
}

func TestWrapCueTextTwoLines(t *testing.T) {
	text := "This is a rather long subtitle line that will not fit on a single line"
	wrapped := wrapCueText(text)
	lines := strings.Split(wrapped, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), wrapped)
	}
	// 折り返しは語境界で行われ、テキスト自体は変わらない
	if strings.ReplaceAll(wrapped, "\n", " ") != text {
		t.Fatalf("wrap altered text: %q", wrapped)
	}
}

func TestWrapCueTextShortUnchanged(t *testing.T) {
	text := "Short enough."
	if got := wrapCueText(text); got != text {
		t.Fatalf("wrapCueText = %q, want unchanged", got)
	}
}
