package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/yourusername/tale-forge/internal/config"
	"github.com/yourusername/tale-forge/internal/video"
)

const (
	taskTypeGenerate = "video:generate"
	queueVideo       = "video"
)

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg          *config.Config
	client       *asynq.Client
	server       *asynq.Server
	mux          *asynq.ServeMux
	store        Store
	videoService *video.Service
	logger       *log.Logger
}

// TaskPayload は動画生成ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, videoService *video.Service, store Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if videoService == nil {
		return nil, errors.New("videoService is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueVideo: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:          cfg,
		client:       client,
		server:       server,
		mux:          mux,
		store:        store,
		videoService: videoService,
		logger:       logger,
	}
	mux.HandleFunc(taskTypeGenerate, manager.handleGenerateTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Enqueue はジョブをキューに投入します。プールが埋まっている場合でも
// 投入自体はブロックせず、キュー上で順番を待ちます。
func (m *Manager) Enqueue(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("jobID is required")
	}

	record := &Record{
		JobID:  jobID,
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   StageQueued,
			Message: "ジョブを受け付けました。",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeGenerate, body, asynq.Queue(queueVideo))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// ErrJobNotFound は対象ジョブが存在しないことを示します。
var ErrJobNotFound = errors.New("job not found")

// ErrJobTerminal はジョブが既に終端状態であることを示します。
var ErrJobTerminal = errors.New("job already reached a terminal state")

// RequestCancel はジョブのキャンセルを要求します。終端状態に達する前の
// ジョブはレジストリ上で即座に cancelled となります。実行中のパイプラインは
// 次のステージ境界で停止します（レンダリング中のサブプロセスは中断しません）。
func (m *Manager) RequestCancel(ctx context.Context, jobID string) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrJobNotFound
	}
	if record.Status.Terminal() {
		return ErrJobTerminal
	}
	return m.store.Update(ctx, jobID, func(record *Record) {
		record.CancelRequested = true
		record.Status = StatusCancelled
		record.Progress.Message = "ジョブはキャンセルされました。"
	})
}

func (m *Manager) handleGenerateTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.Update(ctx, payload.JobID, func(record *Record) {
		record.Status = StatusRunning
	}); err != nil {
		return err
	}

	reporter := func(stage string, percent int, message string) {
		if err := m.store.Update(ctx, payload.JobID, func(record *Record) {
			// 進捗は単調非減少
			if percent > record.Progress.Percent {
				record.Progress.Percent = percent
			}
			record.Progress.Stage = stage
			record.Progress.Message = message
		}); err != nil && m.logger != nil {
			m.logger.Printf("failed to update progress job=%s: %v", payload.JobID, err)
		}
	}

	cancelled := func() bool {
		record, err := m.store.Get(ctx, payload.JobID)
		if err != nil || record == nil {
			return false
		}
		return record.CancelRequested || record.Status == StatusCancelled
	}

	result, err := m.videoService.RunJob(ctx, payload.JobID, reporter, cancelled)
	if err != nil {
		if errors.Is(err, video.ErrCancelled) {
			return m.markCancelled(ctx, payload.JobID)
		}
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *video.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	info := &ResultInfo{
		VideoURL:          m.buildResultURL(jobID, "video"),
		AudioURL:          m.buildResultURL(jobID, "audio"),
		SubtitleURL:       m.buildResultURL(jobID, "subtitles"),
		Script:            result.Script,
		Duration:          result.Duration,
		ImagesUsed:        result.ImagesUsed,
		EstimatedDuration: result.EstimatedDuration,
	}
	// 音声長が推定値の場合はその旨を利用者向けメッセージに含める
	message := "動画の生成が完了しました。"
	if result.EstimatedDuration {
		message = "動画の生成が完了しました（音声の長さは推定値です）。"
	}
	return m.store.Update(ctx, jobID, func(record *Record) {
		record.Status = StatusSucceeded
		record.Progress = ProgressInfo{
			Percent: 100,
			Stage:   StageCompleted,
			Message: message,
		}
		record.Result = info
		record.Error = nil
	})
}

func (m *Manager) markCancelled(ctx context.Context, jobID string) error {
	return m.store.Update(ctx, jobID, func(record *Record) {
		record.Status = StatusCancelled
		record.Progress.Message = "ジョブはキャンセルされました。"
	})
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.Update(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.Error = &ErrorInfo{
			Code:    code,
			Message: message,
		}
	})
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var apiErr *video.Error
	if errors.As(err, &apiErr) {
		return m.failJob(ctx, jobID, apiErr.Code, apiErr.Message)
	}
	return m.failJob(ctx, jobID, video.CodeInternal, err.Error())
}

func (m *Manager) buildResultURL(jobID, kind string) string {
	base := m.cfg.JobResultBaseURL
	if base == "" {
		return fmt.Sprintf("/api/jobs/%s/%s", jobID, kind)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), jobID, kind)
}
