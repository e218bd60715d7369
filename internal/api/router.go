package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/auth"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/ws"
)

// FaceService is what both the REST handlers and the video stream need.
type FaceService interface {
	handler.FaceService
	ws.FrameProcessor
}

type Dependencies struct {
	FaceService       FaceService
	AnomalyService    handler.AnomalyService
	EngagementService handler.EngagementService
	Metrics           *metrics.Metrics

	// Checkins receives stream matches; nil disables attendance check-ins.
	Checkins ws.CheckinQueue

	// Tokens guards /api/v1 and /ws; nil leaves them open.
	Tokens middleware.TokenValidator

	// RateLimitCounter shares limits across replicas; nil keeps them per process.
	RateLimitCounter   middleware.Counter
	RateLimitPerMinute int

	ReadyChecks []handler.Check
	Version     string
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	wsHub       *ws.Hub
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "TRACE ML",
		BodyLimit:    16 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger, r.deps.Metrics))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	healthHandler := handler.NewHealthHandler(r.deps.Version, r.deps.ReadyChecks...)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)
	r.app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics.Handler()))

	r.wsHub = ws.NewHub().OnClientsChanged(r.deps.Metrics.AddWSClients)
	go r.wsHub.Run()

	stream := ws.NewStreamHandler(
		r.deps.FaceService,
		r.deps.Checkins,
		r.wsHub,
		r.deps.Metrics,
		middleware.StatusFor,
		ws.DefaultStreamConfig(),
		r.logger,
	)
	wsGroup := r.app.Group("/ws", r.authenticated()...)
	wsGroup.Use(ws.UpgradeMiddleware())
	wsGroup.Get("/video-stream", stream.Handler())
	wsGroup.Get("/sessions/:session_id", r.wsHub.Subscribe())

	v1 := r.app.Group("/api/v1", r.authenticated()...)

	r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max:     r.deps.RateLimitPerMinute,
		Window:  time.Minute,
		Counter: r.deps.RateLimitCounter,
		Logger:  r.logger,
	})
	v1.Use(r.rateLimiter.Handler())

	faceHandler := handler.NewFaceHandler(r.deps.FaceService, r.logger)
	v1.Post("/face/verify", faceHandler.Verify)
	v1.Post("/face/register", faceHandler.Register)

	engagementHandler := handler.NewEngagementHandler(r.deps.EngagementService)
	v1.Post("/engagement/predict", engagementHandler.Predict)
	v1.Get("/engagement/history/:user_id/:session_id", engagementHandler.History)
	v1.Post("/engagement/feedback", engagementHandler.Feedback)

	anomalyHandler := handler.NewAnomalyHandler(r.deps.AnomalyService)
	v1.Post("/anomaly/detect", anomalyHandler.Detect)

	v1.Delete("/admin/identities", r.adminOnly(faceHandler.ResetIdentities)...)
}

func (r *Router) authenticated() []fiber.Handler {
	if r.deps.Tokens == nil {
		return nil
	}
	return []fiber.Handler{middleware.Auth(r.deps.Tokens, r.logger)}
}

func (r *Router) adminOnly(next fiber.Handler) []fiber.Handler {
	if r.deps.Tokens == nil {
		return []fiber.Handler{next}
	}
	return []fiber.Handler{middleware.RequireRole(auth.RoleAdmin, r.logger), next}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.wsHub != nil {
		r.wsHub.Stop()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
