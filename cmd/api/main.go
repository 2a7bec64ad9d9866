// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/tale-forge/internal/config"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ジョブ基盤（レジストリ、ワーカープール、パイプライン）の初期化
	jobSystem, err := setupJobs(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job system: %v", err)
	}
	jobSystem.manager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, jobSystem)

	// シグナル受信でワーカーを止めてから終了する
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := jobSystem.manager.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, js *jobSystem) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("", js.videoService.CreateHandler(js.scheduler))
			jobRoutes.GET("/:id", js.jobStatusHandler)
			jobRoutes.GET("/:id/events", js.jobEventsHandler)
			jobRoutes.DELETE("/:id", js.jobCancelHandler)
			jobRoutes.GET("/:id/video", js.jobArtifactHandler("video"))
			jobRoutes.GET("/:id/audio", js.jobArtifactHandler("audio"))
			jobRoutes.GET("/:id/subtitles", js.jobArtifactHandler("subtitles"))
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tale-forge-api",
		"version": "0.1.0",
	})
}
