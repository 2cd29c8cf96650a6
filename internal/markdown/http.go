package markdown

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConvertService は変換ジョブの準備と実行を提供します。
type ConvertService interface {
	PrepareFileJob(ctx context.Context, file *multipart.FileHeader) (*JobManifest, error)
	PrepareURLJob(ctx context.Context, rawURL string) (*JobManifest, error)
	RunJob(ctx context.Context, jobID string) (*Result, error)
	DiscardJob(jobID string) error
}

// JobScheduler はジョブレコードの作成とバックグラウンド実行の投入を行います。
type JobScheduler interface {
	Schedule(ctx context.Context, manifest *JobManifest) error
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

// ConvertHandler は POST /api/convert のハンドラーを返します。
// ファイルを保存してジョブを投入し、変換を待たずに jobId を返します。
func ConvertHandler(svc ConvertService, scheduler JobScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data で変換するファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareFileJob(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		scheduleAndRespond(c, svc, scheduler, manifest, "ファイルを受け付けました。変換を開始します。")
	}
}

// ConvertURLHandler は POST /api/convert-url のハンドラーを返します。
func ConvertURLHandler(svc ConvertService, scheduler JobScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req urlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "変換するURLをJSONの url フィールドで指定してください。",
			})
			return
		}

		manifest, err := svc.PrepareURLJob(c.Request.Context(), req.URL)
		if err != nil {
			respondWithError(c, err)
			return
		}

		scheduleAndRespond(c, svc, scheduler, manifest, "URLを受け付けました。変換を開始します。")
	}
}

// ConvertStreamHandler は POST /api/convert/stream のハンドラーを返します。
// 変換結果をバッチ単位のNDJSONとしてストリーム配信します。
func ConvertStreamHandler(svc ConvertService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data で変換するファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareFileJob(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		streamConversion(c, svc, manifest)
	}
}

// ConvertURLStreamHandler は POST /api/convert-url/stream のハンドラーを返します。
func ConvertURLStreamHandler(svc ConvertService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req urlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "変換するURLをJSONの url フィールドで指定してください。",
			})
			return
		}

		manifest, err := svc.PrepareURLJob(c.Request.Context(), req.URL)
		if err != nil {
			respondWithError(c, err)
			return
		}

		streamConversion(c, svc, manifest)
	}
}

func scheduleAndRespond(c *gin.Context, svc ConvertService, scheduler JobScheduler, manifest *JobManifest, message string) {
	if err := scheduler.Schedule(c.Request.Context(), manifest); err != nil {
		if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   manifest.JobID,
		"status":  "processing",
		"message": message,
	})
}

// streamConversion は変換を同期実行し、結果をNDJSONで1行ずつ送出します。
// 最初のメッセージ送出以降の失敗はHTTPステータスではなく error メッセージで通知します。
func streamConversion(c *gin.Context, svc ConvertService, manifest *JobManifest) {
	result, err := svc.RunJob(c.Request.Context(), manifest.JobID)

	var stream *Stream
	if err != nil {
		stream = ErrorStream(err.Error())
	} else {
		chunks := SplitChunks(result.Filename, result.Markdown)
		batches := PlanBatches(chunks, batchMaxChunks, batchTokenBudget)
		stream = NewStream(result.Filename, chunks, batches)
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-store")
	c.Header("Connection", "keep-alive")
	c.Header("X-Job-Id", manifest.JobID)
	c.Status(http.StatusOK)

	// c.Stream は1メッセージごとにフラッシュし、クライアント切断で打ち切ります。
	c.Stream(func(w io.Writer) bool {
		if c.Request.Context().Err() != nil {
			return false
		}
		msg, ok := stream.Next()
		if !ok {
			return false
		}
		if err := json.NewEncoder(w).Encode(msg); err != nil {
			return false
		}
		return true
	})
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "UNSUPPORTED_MEDIA_TYPE":
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("変換するファイルを選択してください。")
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0], nil
	}
	if file := form.File["file[]"]; len(file) > 0 {
		return file[0], nil
	}
	if files := form.File["files"]; len(files) > 0 {
		return files[0], nil
	}
	if alt := form.File["files[]"]; len(alt) > 0 {
		return alt[0], nil
	}
	return nil, errors.New("変換するファイルを選択してください。")
}
