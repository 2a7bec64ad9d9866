package video

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobScheduler はジョブをワーカープールへ投入する依存です。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// 入力値の上限。これを超えるリクエストは INVALID_INPUT として拒否します。
const (
	maxSubjectChars = 200
	maxTopicChars   = 500
)

// CreateHandler は動画生成リクエストを受け付けるハンドラーを返します。
// 入力を検証してワークスペースを準備し、ジョブをキューへ投入して
// 202 Accepted とジョブIDを返します。
func (s *Service) CreateHandler(scheduler JobScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, newError(CodeInvalidInput, "リクエスト形式が正しくありません。", err))
			return
		}

		req.Subject = strings.TrimSpace(req.Subject)
		req.Topic = strings.TrimSpace(req.Topic)
		if req.Subject == "" || req.Topic == "" {
			respondWithError(c, newError(CodeInvalidInput, "subject と topic は必須です。", nil))
			return
		}
		if len(req.Subject) > maxSubjectChars || len(req.Topic) > maxTopicChars {
			respondWithError(c, newError(CodeInvalidInput, "subject または topic が長すぎます。", nil))
			return
		}
		if req.Persona == "" {
			req.Persona = "narrator"
		}
		if req.Language == "" {
			req.Language = "en"
		}
		if req.Voice == "" {
			req.Voice = s.cfg.DefaultVoice
		}

		jobID := uuid.NewString()
		if err := s.PrepareGenerateJob(jobID, &req); err != nil {
			s.logger.Printf("failed to prepare job %s: %v", jobID, err)
			respondWithError(c, newError(CodeInternal, "ジョブの作成に失敗しました。", err))
			return
		}

		if err := scheduler.Schedule(c.Request.Context(), jobID); err != nil {
			s.logger.Printf("failed to schedule job %s: %v", jobID, err)
			s.DiscardJob(jobID)
			respondWithError(c, newError(CodeInternal, "ジョブの投入に失敗しました。", err))
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

// respondWithError はエラーコードをHTTPステータスへ対応付けて返します。
func respondWithError(c *gin.Context, err *Error) {
	status := http.StatusInternalServerError
	switch err.Code {
	case CodeInvalidInput:
		status = http.StatusBadRequest
	case CodeUpstream, CodeNoAssets:
		status = http.StatusBadGateway
	case CodeRenderTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    err.Code,
			"message": err.Message,
		},
	})
}
