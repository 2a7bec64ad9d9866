package video

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/yourusername/tale-forge/internal/config"
)

type fakeText struct {
	script string
	err    error
}

func (f *fakeText) GenerateText(ctx context.Context, subject, topic, language string) (string, error) {
	return f.script, f.err
}

type fakeSpeech struct {
	duration float64
	err      error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voice, language, outputPath string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := os.WriteFile(outputPath, []byte("mp3"), 0o640); err != nil {
		return 0, err
	}
	return f.duration, nil
}

type fakeImages struct {
	urls []string
	err  error
}

func (f *fakeImages) SourceImages(ctx context.Context, prompts []string, query string, count int) ([]string, error) {
	return f.urls, f.err
}

type fakeCompositor struct {
	err      error
	rendered *RenderRequest
}

func (f *fakeCompositor) Render(ctx context.Context, req *RenderRequest, onProgress func(frac float64)) error {
	f.rendered = req
	if f.err != nil {
		return f.err
	}
	for _, frac := range []float64{0.25, 0.5, 0.75, 1.0} {
		if onProgress != nil {
			onProgress(frac)
		}
	}
	return os.WriteFile(req.OutputPath, []byte("mp4"), 0o640)
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

type progressEvent struct {
	stage   string
	percent int
}

func testPipelineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir:             t.TempDir(),
		JobExpireMinutes:    60,
		MaxImages:           8,
		SecondsPerImage:     10,
		TransitionSeconds:   1.0,
		DownloadConcurrency: 2,
		SubtitleLeadSeconds: 2.5,
		DefaultVoice:        "en-US-JennyNeural",
	}
}

func startImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tinyPNG)
	}))
	t.Cleanup(server.Close)
	return server
}

const testScript = "The story begins in a small village. " +
	"People woke early and worked the fields together. " +
	"Seasons passed and the village slowly grew into a town. " +
	"Travellers arrived with goods and new ideas. " +
	"In time the town became known far beyond the valley."

func runTestJob(t *testing.T, service *Service, jobID string, cancelled CancelCheck) (*Result, []progressEvent, error) {
	t.Helper()
	if err := service.PrepareGenerateJob(jobID, &Request{
		Subject: "history",
		Topic:   "a village becoming a town",
	}); err != nil {
		t.Fatalf("PrepareGenerateJob returned error: %v", err)
	}
	var events []progressEvent
	reporter := func(stage string, percent int, message string) {
		events = append(events, progressEvent{stage: stage, percent: percent})
	}
	result, err := service.RunJob(context.Background(), jobID, reporter, cancelled)
	return result, events, err
}

func TestRunJobSuccess(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	compositor := &fakeCompositor{}
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 32},
		&fakeImages{urls: []string{server.URL + "/1.png", server.URL + "/2.png", server.URL + "/3.png"}},
		compositor,
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	result, err := service.RunJob(context.Background(), mustPrepare(t, service), nil, nil)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if result.Script != testScript {
		t.Fatalf("result script mismatch")
	}
	if result.Duration != 32 {
		t.Fatalf("result duration = %f, want 32", result.Duration)
	}
	if result.EstimatedDuration {
		t.Fatal("duration should not be estimated")
	}
	if len(result.ImagesUsed) != 3 {
		t.Fatalf("expected 3 images used, got %d", len(result.ImagesUsed))
	}
	if _, err := os.Stat(result.VideoPath); err != nil {
		t.Fatalf("video not written: %v", err)
	}
	if _, err := os.Stat(result.SubtitlePath); err != nil {
		t.Fatalf("subtitles not written: %v", err)
	}

	// レンダリング入力の検証: タイムライン総時間は音声長と一致する
	if compositor.rendered == nil {
		t.Fatal("compositor not invoked")
	}
	if total := compositor.rendered.Timeline.Total; math.Abs(total-32) > timeEpsilon {
		t.Fatalf("timeline total = %f, want 32", total)
	}
	if compositor.rendered.AudioDuration != 32 {
		t.Fatalf("audio duration = %f, want 32", compositor.rendered.AudioDuration)
	}
}

func mustPrepare(t *testing.T, service *Service) string {
	t.Helper()
	jobID := fmt.Sprintf("job-%s", t.Name())
	if err := service.PrepareGenerateJob(jobID, &Request{
		Subject: "history",
		Topic:   "a village becoming a town",
	}); err != nil {
		t.Fatalf("PrepareGenerateJob returned error: %v", err)
	}
	return jobID
}

func TestRunJobProgressMonotonicAndOrdered(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 30},
		&fakeImages{urls: []string{server.URL + "/1.png", server.URL + "/2.png"}},
		&fakeCompositor{},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, events, err := runTestJob(t, service, "job-progress", nil)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	prev := -1
	for i, ev := range events {
		if ev.percent < prev {
			t.Fatalf("progress went backwards at event %d: %d -> %d", i, prev, ev.percent)
		}
		prev = ev.percent
		if ev.percent > 99 {
			t.Fatalf("progress exceeded 99 before completion: %d", ev.percent)
		}
	}

	// ステージは定義順に現れる
	stageOrder := map[string]int{
		stageText:     0,
		stageAudio:    1,
		stageImages:   2,
		stageDownload: 3,
		stageRender:   4,
	}
	prevStage := -1
	for i, ev := range events {
		rank, ok := stageOrder[ev.stage]
		if !ok {
			t.Fatalf("unknown stage %q at event %d", ev.stage, i)
		}
		if rank < prevStage {
			t.Fatalf("stage order regressed at event %d: %q", i, ev.stage)
		}
		prevStage = rank
	}
}

func TestRunJobNoAssets(t *testing.T) {
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 30},
		&fakeImages{urls: nil},
		&fakeCompositor{},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, _, err := runTestJob(t, service, "job-noassets", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Code != CodeNoAssets {
		t.Fatalf("error code = %q, want %q", apiErr.Code, CodeNoAssets)
	}
}

func TestRunJobAllDownloadsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 30},
		&fakeImages{urls: []string{server.URL + "/gone.png"}},
		&fakeCompositor{},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, _, err := runTestJob(t, service, "job-dlfail", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeNoAssets {
		t.Fatalf("expected NO_ASSETS, got %v", err)
	}
}

func TestRunJobRenderErrorPropagates(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	renderErr := newError(CodeRenderError, "コンポジタが異常終了しました", nil)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 30},
		&fakeImages{urls: []string{server.URL + "/1.png"}},
		&fakeCompositor{err: renderErr},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, _, err := runTestJob(t, service, "job-renderfail", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeRenderError {
		t.Fatalf("expected RENDER_ERROR, got %v", err)
	}

	// 失敗したジョブのワークスペースは破棄される
	if _, statErr := os.Stat(service.workspaceFor("job-renderfail").dir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace should be removed, stat err: %v", statErr)
	}
}

func TestRunJobUpstreamTextError(t *testing.T) {
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{err: errors.New("boom")},
		&fakeSpeech{duration: 30},
		&fakeImages{},
		&fakeCompositor{},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, _, err := runTestJob(t, service, "job-textfail", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeUpstream {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestRunJobEmptyScriptIsUpstreamError(t *testing.T) {
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: "   "},
		&fakeSpeech{duration: 30},
		&fakeImages{},
		&fakeCompositor{},
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	_, _, err := runTestJob(t, service, "job-empty", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeUpstream {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestRunJobEstimatedDurationFallback(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 0},
		&fakeImages{urls: []string{server.URL + "/1.png"}},
		&fakeCompositor{},
		&fakeProber{err: errors.New("probe failed")},
		log.New(os.Stderr, "", 0),
	)

	result, _, err := runTestJob(t, service, "job-estimated", nil)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if !result.EstimatedDuration {
		t.Fatal("expected estimated duration flag")
	}
	if result.Duration <= 0 {
		t.Fatalf("duration = %f, want > 0", result.Duration)
	}
}

func TestRunJobProbedDurationFallback(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 0},
		&fakeImages{urls: []string{server.URL + "/1.png"}},
		&fakeCompositor{},
		&fakeProber{duration: 27.5},
		log.New(os.Stderr, "", 0),
	)

	result, _, err := runTestJob(t, service, "job-probed", nil)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if result.EstimatedDuration {
		t.Fatal("probed duration must not be flagged as estimated")
	}
	if result.Duration != 27.5 {
		t.Fatalf("duration = %f, want 27.5", result.Duration)
	}
}

func TestRunJobCancelledBetweenStages(t *testing.T) {
	server := startImageServer(t)
	cfg := testPipelineConfig(t)
	compositor := &fakeCompositor{}
	service := NewService(cfg,
		&fakeText{script: testScript},
		&fakeSpeech{duration: 30},
		&fakeImages{urls: []string{server.URL + "/1.png"}},
		compositor,
		&fakeProber{},
		log.New(os.Stderr, "", 0),
	)

	// 2回目のチェック（音声合成前）から取り消し要求を返す
	calls := 0
	cancelled := func() bool {
		calls++
		return calls > 1
	}
	_, _, err := runTestJob(t, service, "job-cancel", cancelled)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if compositor.rendered != nil {
		t.Fatal("compositor must not run after cancellation")
	}
}
