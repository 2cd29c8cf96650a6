package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/markdown-forge/internal/config"
	"github.com/yourusername/markdown-forge/internal/jobs"
	"github.com/yourusername/markdown-forge/internal/markdown"
)

type convertJobScheduler struct {
	manager *jobs.Manager
}

func (s *convertJobScheduler) Schedule(ctx context.Context, manifest *markdown.JobManifest) error {
	_, err := s.manager.Create(ctx, manifest)
	return err
}

func setupJobs(cfg *config.Config, svc *markdown.Service) (*jobs.Manager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, durable := jobs.SelectStore(ctx, cfg.RedisAddr(), cfg.JobTTL(), log.Default())
	if durable {
		log.Printf("Using redis job store at %s", cfg.RedisAddr())
	}

	return jobs.NewManager(cfg, svc, store, durable, log.Default())
}

func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			// 未知のIDと期限切れのIDは区別できず、どちらも JOB_NOT_FOUND になる
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"status":    record.Status,
			"filename":  record.Filename,
			"updatedAt": record.UpdatedAt,
		}
		if record.Markdown != "" {
			payload["markdown"] = record.Markdown
		}
		if record.ErrorMessage != "" {
			payload["error"] = record.ErrorMessage
		}

		c.JSON(http.StatusOK, payload)
	}
}
