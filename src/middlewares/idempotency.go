package middlewares

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"

	"wab/src/config"
	"wab/src/db"
	"wab/src/models"
	"wab/src/types"
	"wab/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes the wrapped mutating endpoint safe to retry.
// The first request with a given Idempotency-Key runs and has its response
// cached; retries with the same key and payload replay the cached response.
// The same key with a different payload is rejected, and a retry that
// overlaps the original still being processed is told to back off.
func IdempotencyMiddleware(ctx *gin.Context) {
	key := ctx.GetHeader("Idempotency-Key")
	if key == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing Idempotency-Key header"})
		return
	}
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}
	ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

	var tenantId *uuid.UUID
	if tid, err := uuid.Parse(ctx.GetString("tenant_id")); err == nil {
		tenantId = &tid
	}
	endpoint := fmt.Sprintf("%s %s", ctx.Request.Method, ctx.FullPath())
	payloadHash := utils.HashPayload(fmt.Sprintf("%s|%s|%s", ctx.Request.Method, ctx.Request.URL.Path, string(body)))

	var record *models.IdempotencyRecord
	var proceed bool
	dbconn := db.GetDb()
	err = dbconn.Transaction(func(tx *gorm.DB) error {
		var err error
		record, proceed, err = utils.BeginIdempotent(tx, tenantId, endpoint, key, payloadHash, config.IdempotencyRetention())
		return err
	})
	if err != nil {
		switch err {
		case types.ErrIdempotencyKeyReuseConflict:
			ctx.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case types.ErrRequestInFlight:
			ctx.Header("Retry-After", "1")
			ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Printf("Error claiming idempotency key: %s\n", err.Error())
			ctx.AbortWithStatus(http.StatusInternalServerError)
		}
		return
	}
	if !proceed {
		ctx.Header("Idempotent-Replay", "true")
		ctx.Data(record.StatusCode, "application/json", record.ResponseBody)
		ctx.Abort()
		return
	}

	recorder := &responseRecorder{ResponseWriter: ctx.Writer}
	ctx.Writer = recorder
	ctx.Next()

	status := ctx.Writer.Status()
	if status >= 500 {
		// Do not cache server failures, let the client retry fresh
		if err := dbconn.Unscoped().Delete(&models.IdempotencyRecord{}, record.ID).Error; err != nil {
			log.Printf("Error discarding idempotency record %d: %s\n", record.ID, err.Error())
		}
		return
	}
	err = dbconn.Transaction(func(tx *gorm.DB) error {
		return utils.CompleteIdempotent(tx, record, status, recorder.body.Bytes())
	})
	if err != nil {
		log.Printf("Error completing idempotency record %d: %s\n", record.ID, err.Error())
	}
}
