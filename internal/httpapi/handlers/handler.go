package handlers

import (
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/logger"
)

type Handler struct {
	Manager *job.Manager
	Log     *logger.Logger
}

func NewHandler(manager *job.Manager, log *logger.Logger) *Handler {
	return &Handler{Manager: manager, Log: log.With("component", "HTTP")}
}
