package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/telemed/internal/api/http/converter"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/service"
)

type ConsultationController struct {
	consultations service.ConsultationInteractor
}

func NewConsultationController(consultations service.ConsultationInteractor) *ConsultationController {
	return &ConsultationController{consultations: consultations}
}

type decisionRequest struct {
	DoctorID  string `json:"doctor_id" binding:"required"`
	PatientID string `json:"patient_id" binding:"required"`
	EntryID   string `json:"entry_id" binding:"required"`
}

func (c *ConsultationController) Accept(ctx *gin.Context) {
	var req decisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	res, err := c.consultations.Accept(ctx.Request.Context(), req.DoctorID, req.PatientID, req.EntryID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"consultation": converter.ConsultationToApi(res.Consultation, time.Now()),
		"session_id":   res.SessionID,
	})
}

func (c *ConsultationController) Reject(ctx *gin.Context) {
	var req decisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := c.consultations.Reject(ctx.Request.Context(), req.DoctorID, req.PatientID, req.EntryID); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": domain.DecisionRejected})
}

func (c *ConsultationController) Finish(ctx *gin.Context) {
	type request struct {
		DoctorID string `json:"doctor_id" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := c.consultations.Finish(ctx.Request.Context(), ctx.Param("recordID"), req.DoctorID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"consultation": converter.ConsultationToApi(record, time.Now())})
}

func (c *ConsultationController) Get(ctx *gin.Context) {
	record, err := c.consultations.GetConsultation(ctx.Request.Context(), ctx.Param("recordID"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"consultation": converter.ConsultationToApi(record, time.Now())})
}
