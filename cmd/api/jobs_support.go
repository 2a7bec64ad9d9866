package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/tale-forge/internal/config"
	"github.com/yourusername/tale-forge/internal/jobs"
	"github.com/yourusername/tale-forge/internal/providers"
	"github.com/yourusername/tale-forge/internal/video"
)

// jobSystem はジョブAPIを構成する依存の束です。
type jobSystem struct {
	manager      *jobs.Manager
	videoService *video.Service
	scheduler    video.JobScheduler
}

// managerScheduler は Manager を video.JobScheduler として使うアダプターです。
type managerScheduler struct {
	manager *jobs.Manager
}

func (s *managerScheduler) Schedule(ctx context.Context, jobID string) error {
	_, err := s.manager.Enqueue(ctx, jobID)
	return err
}

// setupJobs はレジストリ、プロバイダー、パイプライン、ワーカープールを
// 設定から組み立てます。
func setupJobs(cfg *config.Config) (*jobSystem, error) {
	logger := log.Default()

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ttl := time.Duration(cfg.JobExpireMinutes) * time.Minute
	store := jobs.NewRedisStore(rdb, ttl)

	textClient := providers.NewAzureOpenAIClient(
		cfg.AzureOpenAIEndpoint,
		cfg.AzureOpenAIKey,
		cfg.AzureOpenAIDeployment,
		cfg.AzureOpenAIAPIVersion,
	)
	speechClient := providers.NewAzureSpeechClient(cfg.AzureSpeechKey, cfg.AzureSpeechRegion)

	// 生成系と検索系はキーが設定されているものだけ組み込む
	var generator providers.ImageGenerator
	if cfg.RunwareAPIKey != "" {
		generator = providers.NewRunwareClient(cfg.RunwareAPIKey)
	}
	var searcher providers.ImageSearcher
	if cfg.PexelsAPIKey != "" {
		searcher = providers.NewPexelsClient(cfg.PexelsAPIKey)
	}
	imageSource := providers.NewImageSource(generator, searcher, logger)

	compositor := video.NewFFmpeg(
		cfg.FFmpegPath,
		cfg.FFprobePath,
		time.Duration(cfg.RenderTimeoutSeconds)*time.Second,
	)

	videoService := video.NewService(cfg, textClient, speechClient, imageSource, compositor, compositor, logger)

	manager, err := jobs.NewManager(cfg, videoService, store, logger)
	if err != nil {
		return nil, err
	}

	return &jobSystem{
		manager:      manager,
		videoService: videoService,
		scheduler:    &managerScheduler{manager: manager},
	}, nil
}

// jobStatusHandler はジョブの現在状態を返します。
func (js *jobSystem) jobStatusHandler(c *gin.Context) {
	record, err := js.manager.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_ERROR", "message": "ジョブ情報の取得に失敗しました。"},
		})
		return
	}
	if record == nil {
		respondJobNotFound(c)
		return
	}
	c.JSON(http.StatusOK, record)
}

// jobEventsHandler はジョブ状態を Server-Sent Events でプッシュ配信します。
// 1秒間隔でスナップショットを送り、終端状態に達したら接続を閉じます。
func (js *jobSystem) jobEventsHandler(c *gin.Context) {
	jobID := c.Param("id")
	record, err := js.manager.GetRecord(c.Request.Context(), jobID)
	if err != nil || record == nil {
		respondJobNotFound(c)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	// 接続直後に現在状態を1回送ってからポーリングに入る
	c.SSEvent("status", record)
	c.Writer.Flush()
	if record.Status.Terminal() {
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			record, err := js.manager.GetRecord(c.Request.Context(), jobID)
			if err != nil || record == nil {
				return false
			}
			c.SSEvent("status", record)
			return !record.Status.Terminal()
		}
	})
}

// jobCancelHandler はジョブのキャンセルを要求します。
func (js *jobSystem) jobCancelHandler(c *gin.Context) {
	err := js.manager.RequestCancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondJobNotFound(c)
	case errors.Is(err, jobs.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{"code": "JOB_TERMINAL", "message": "ジョブは既に完了しています。"},
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_ERROR", "message": "キャンセル要求の処理に失敗しました。"},
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{"jobId": c.Param("id"), "status": "cancelled"})
	}
}

// jobArtifactHandler は成果物（動画・音声・字幕）を配信するハンドラーを返します。
func (js *jobSystem) jobArtifactHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, contentType, err := js.videoService.OpenResultFile(c.Param("id"), kind)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				respondJobNotFound(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"code": "INTERNAL_ERROR", "message": "成果物の取得に失敗しました。"},
			})
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"code": "INTERNAL_ERROR", "message": "成果物の取得に失敗しました。"},
			})
			return
		}
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}

func respondJobNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": gin.H{"code": "JOB_NOT_FOUND", "message": "指定されたジョブが見つかりません。"},
	})
}
