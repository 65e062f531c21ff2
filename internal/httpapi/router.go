package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/engine/internal/common"
	"github.com/quillforge/engine/internal/config"
	"github.com/quillforge/engine/internal/httpapi/handlers"
	"github.com/quillforge/engine/internal/httpapi/middleware"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/logger"
)

func NewRouter(manager *job.Manager, cfg config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(manager, log)

	r.GET("/ping", func(c *gin.Context) { common.OK(c, gin.H{"pong": true}) })

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/jobs", h.SubmitJob)
	authGroup.GET("/jobs", h.ListJobs)
	authGroup.GET("/jobs/:job_id", h.GetJobStatus)
	authGroup.DELETE("/jobs/:job_id", h.CancelJob)

	return r
}
