package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/telemed/internal/api/http/converter"
	"github.com/immxrtalbeast/telemed/internal/service"
)

type QueueController struct {
	queue service.QueueInteractor
}

func NewQueueController(queue service.QueueInteractor) *QueueController {
	return &QueueController{queue: queue}
}

func (c *QueueController) Join(ctx *gin.Context) {
	type request struct {
		PatientID string `json:"patient_id" binding:"required"`
		Type      string `json:"type"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	entry, err := c.queue.Join(ctx.Request.Context(), req.PatientID, req.Type)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"entry": converter.QueueEntryToApi(entry)})
}

func (c *QueueController) List(ctx *gin.Context) {
	entries, err := c.queue.Waiting(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"entries": converter.QueueEntriesToApi(entries), "count": len(entries)})
}

func (c *QueueController) Next(ctx *gin.Context) {
	entry, err := c.queue.Next(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"entry": converter.QueueEntryToApi(entry)})
}

func (c *QueueController) Position(ctx *gin.Context) {
	entry, rank, err := c.queue.Position(ctx.Request.Context(), ctx.Param("patientID"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"entry": converter.QueueEntryToApi(entry), "position": rank})
}

func (c *QueueController) Leave(ctx *gin.Context) {
	if err := c.queue.Leave(ctx.Request.Context(), ctx.Param("patientID")); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
