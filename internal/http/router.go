package http

import (
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "userhub"

type Deps struct {
	Cfg    config.Config
	Users  *service.UserService
	Tokens middlewares.TokenVerifier
	Prom   *observability.Prom
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Pinger
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.Cfg.CORSOrigins))
	if deps.Cfg.MaxBodyBytes > 0 {
		r.Use(middlewares.MaxBodyBytes(deps.Cfg.MaxBodyBytes))
	}
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health and docs
	h := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authMW := middlewares.NewAuthMiddleware(deps.Tokens, deps.Prom)
	authHandler := handlers.NewAuthHandler(deps.Users)
	usersHandler := handlers.NewUsersHandler(deps.Users)

	api := r.Group("/api")

	// content type is checked after auth on protected writes
	authGroup := api.Group("/auth")
	authGroup.POST("/login", middlewares.RequireJSON(), authHandler.Login)
	authGroup.POST("/register", middlewares.RequireJSON(), authHandler.Register)
	authGroup.GET("/me", authMW.RequireAuth(), authHandler.Me)

	users := api.Group("/users", authMW.RequireAuth())
	users.GET("", authMW.RequireRole(user.RoleAdmin), usersHandler.List)
	users.GET("/:id", usersHandler.Get)
	users.PUT("/:id", authMW.RequireRoleOrSelf(user.RoleAdmin, "id"), middlewares.RequireJSON(), usersHandler.Update)
	users.DELETE("/:id", authMW.RequireRole(user.RoleAdmin), usersHandler.Delete)

	return r
}
