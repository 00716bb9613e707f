package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/internal/service"
)

var statusByError = []struct {
	err    error
	status int
}{
	{repository.ErrEntryNotFound, http.StatusNotFound},
	{repository.ErrUserNotFound, http.StatusNotFound},
	{repository.ErrConsultationNotFound, http.StatusNotFound},
	{repository.ErrAlreadyQueued, http.StatusConflict},
	{repository.ErrUserExists, http.StatusConflict},
	{service.ErrEntryTaken, http.StatusConflict},
	{service.ErrDoctorUnavailable, http.StatusConflict},
	{service.ErrAlreadyFinished, http.StatusConflict},
	{repository.ErrStatusConflict, http.StatusConflict},
	{service.ErrEntryMismatch, http.StatusBadRequest},
	{service.ErrInvalidRole, http.StatusBadRequest},
	{service.ErrInvalidStatus, http.StatusBadRequest},
	{service.ErrNotParticipant, http.StatusForbidden},
}

// writeError renders known domain errors with their own message and status,
// anything else as a 500.
func writeError(ctx *gin.Context, err error) {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			ctx.JSON(m.status, gin.H{"error": m.err.Error()})
			return
		}
	}
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
