package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"opsdash/internal/handler"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnChecker interface {
	IsConnected() bool
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Planner *handler.PlannerHandler
	Project *handler.ProjectHandler
	Finance *handler.FinanceHandler
	Admin   *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

const serviceName = "opsdash-server"

// NewRouter builds the engine. db and publisher drive /readyz; publisher may be nil.
func NewRouter(h Handlers, db Pinger, publisher ConnChecker, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), TraceMiddleware(), RequestLogger(log))

	// Health endpoints (放在最前面)
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/healthz", ok)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", ok)
	r.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.Planner != nil {
		planner := r.Group("/planner")
		planner.GET("/templates", h.Planner.Templates)
		planner.POST("/rescale", h.Planner.Rescale)
		planner.POST("/edit-boundary", h.Planner.EditBoundary)
	}

	if h.Project != nil {
		projects := r.Group("/projects")
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:id", h.Project.GetProject)
		projects.DELETE("/:id", h.Project.DeleteProject)
		projects.PUT("/:id/status", h.Project.UpdateStatus)
		projects.PUT("/:id/phases", h.Project.EditPhases)
		projects.POST("/:id/tasks", h.Project.AddTask)
		projects.PUT("/:id/tasks/:taskId", h.Project.UpdateTask)
		projects.PUT("/:id/tasks/:taskId/progress", h.Project.SetTaskProgress)
		projects.PUT("/:id/tasks/:taskId/status", h.Project.MoveTask)

		r.GET("/dashboard/stats", h.Project.DashboardStats)
	}

	if h.Finance != nil {
		fin := r.Group("/finance")
		fin.GET("/entries", h.Finance.ListEntries)
		fin.POST("/entries", h.Finance.CreateEntry)
		fin.DELETE("/entries/:id", h.Finance.DeleteEntry)
		fin.GET("/categories", h.Finance.ListCategories)
		fin.POST("/categories", h.Finance.CreateCategory)
		fin.DELETE("/categories/:id", h.Finance.DeleteCategory)
		fin.POST("/ofx", h.Finance.UploadOFX)
		fin.POST("/ofx/:id/confirm", h.Finance.ConfirmImport)
		fin.GET("/dashboard", h.Finance.Dashboard)
		fin.GET("/reports/cashflow", h.Finance.Cashflow)
		fin.GET("/reports/dre", h.Finance.IncomeStatement)
	}

	if h.Admin != nil {
		admin := r.Group("/admin/outbox")
		admin.GET("/failed", h.Admin.ListFailedEvents)
		admin.POST("/:id/replay", h.Admin.ReplayEvent)
	}

	return &Router{Engine: r}
}

// Server wraps the engine in an http.Server so main can shut it down.
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
