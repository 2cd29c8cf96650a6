// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/markdown-forge/internal/config"
	"github.com/yourusername/markdown-forge/internal/jobs"
	"github.com/yourusername/markdown-forge/internal/markdown"
	"github.com/yourusername/markdown-forge/internal/storage"
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
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// 変換サービスの初期化
	workspaces := storage.NewLocal(cfg.WorkDir)
	converter := markdown.NewHTTPConverter(cfg.ConverterURL, &http.Client{
		Timeout: cfg.ConverterTimeout(),
	})
	svc := markdown.NewService(workspaces, converter, cfg.MaxFileSize)

	// ジョブストアとワーカーの初期化（ストアの選択は起動時に一度だけ）
	manager, err := setupJobs(cfg, svc)
	if err != nil {
		log.Fatalf("Failed to set up jobs: %v", err)
	}
	manager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, svc, manager)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "markdown-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, svc *markdown.Service, manager *jobs.Manager) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	scheduler := &convertJobScheduler{manager: manager}

	api := router.Group("/api")
	{
		api.POST("/convert", markdown.ConvertHandler(svc, scheduler))
		api.POST("/convert-url", markdown.ConvertURLHandler(svc, scheduler))
		api.POST("/convert/stream", markdown.ConvertStreamHandler(svc))
		api.POST("/convert-url/stream", markdown.ConvertURLStreamHandler(svc))
		api.GET("/jobs/:id", jobStatusHandler(manager))
	}
}
