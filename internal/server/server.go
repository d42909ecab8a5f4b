package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/flowjournal/flowpush/internal/config"
	"github.com/flowjournal/flowpush/internal/logging"
	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/service"
	"github.com/flowjournal/flowpush/internal/webpush"
)

const (
	localUserID = "userID"
	localClaims = "claims"
)

// KeySource exposes the VAPID applicationServerKey handed to browsers.
type KeySource interface {
	PublicKey() string
}

// Server wires HTTP handlers.
type Server struct {
	app       *fiber.App
	subSvc    *service.SubscriptionService
	notifySvc *service.NotifyService
	logSvc    *service.DeliveryLogService
	authSvc   *service.AuthService
	keys      KeySource
	limiter   *userLimiter
	log       logging.Logger
	cfg       *config.Config
}

// New builds a server instance.
func New(cfg *config.Config, log logging.Logger, keys KeySource, subSvc *service.SubscriptionService, notifySvc *service.NotifyService, logSvc *service.DeliveryLogService, authSvc *service.AuthService) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "flowpush",
		DisableStartupMessage: true,
	})
	s := &Server{
		app:       app,
		subSvc:    subSvc,
		notifySvc: notifySvc,
		logSvc:    logSvc,
		authSvc:   authSvc,
		keys:      keys,
		limiter:   newUserLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		log:       log,
		cfg:       cfg,
	}
	s.registerRoutes()
	return s
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.HTTP.AllowOrigins,
		AllowHeaders: "authorization, x-client-info, apikey, content-type",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
	}))

	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/auth/login", s.handleLogin)
	s.app.Get("/auth/profile", s.requireUser, s.handleProfile)

	// Browser facing push APIs, authenticated with the user's bearer token
	push := s.app.Group("/api/push", s.requireUser)
	push.Get("/vapid-key", s.handleVAPIDKey)
	push.Get("/subscriptions", s.handleListSubscriptions)
	push.Post("/subscriptions", s.handleSubscribe)
	push.Delete("/subscriptions", s.handleUnsubscribe)
	push.Delete("/subscriptions/:id", s.handleUnsubscribeByID)
	push.Post("/notify", s.rateLimit, s.handleNotify)

	// Operator APIs
	admin := s.app.Group("/api/admin", s.requireUser, s.requireAdmin)
	admin.Get("/summary", s.handleAdminSummary)
	admin.Get("/delivery/log/list", s.handleLogList)
	admin.Get("/delivery/log/count/date", s.handleLogCountDate)
	admin.Get("/delivery/log/count/status", s.handleLogCountStatus)
	admin.Get("/delivery/log/count/origin", s.handleLogCountOrigin)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok"}
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()
	if _, err := s.subSvc.Count(ctx); err != nil {
		s.log.Error(c.UserContext(), "health check: storage unavailable", "err", err)
		resp["storage"] = fiber.Map{"status": "degraded"}
	} else {
		resp["storage"] = fiber.Map{"status": "up"}
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("invalid request body"))
	}
	token, err := s.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		s.log.Warn(c.UserContext(), "operator login rejected", "username", req.Username)
		return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.UnauthorizedCode, err.Error()))
	}
	return c.JSON(model.Success("login succeeded", fiber.Map{
		"token":    token,
		"username": strings.TrimSpace(req.Username),
	}))
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	return c.JSON(model.Success("ok", fiber.Map{
		"userId": claims.Subject,
		"admin":  claims.IsAdmin(),
	}))
}

func (s *Server) handleVAPIDKey(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"publicKey": s.keys.PublicKey()})
}

func (s *Server) handleListSubscriptions(c *fiber.Ctx) error {
	views, err := s.subSvc.ListViews(c.UserContext(), userIDFrom(c))
	if err != nil {
		s.log.Error(c.UserContext(), "list subscriptions failed", "err", err)
		return s.fail(c, http.StatusInternalServerError, "Failed to list subscriptions")
	}
	if views == nil {
		views = []*model.SubscriptionView{}
	}
	return c.JSON(fiber.Map{"subscriptions": views})
}

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	var req model.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	sub, err := s.subSvc.Subscribe(c.UserContext(), userIDFrom(c), req, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubscription) {
			return s.fail(c, http.StatusBadRequest, err.Error())
		}
		s.log.Error(c.UserContext(), "store subscription failed", "err", err)
		return s.fail(c, http.StatusInternalServerError, "Failed to save subscription")
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "id": sub.ID})
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	var req model.UnsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return s.fail(c, http.StatusBadRequest, "endpoint is required")
	}
	removed, err := s.subSvc.Unsubscribe(c.UserContext(), userIDFrom(c), req.Endpoint)
	if err != nil {
		s.log.Error(c.UserContext(), "remove subscription failed", "err", err)
		return s.fail(c, http.StatusInternalServerError, "Failed to remove subscription")
	}
	msg := "Subscription removed"
	if !removed {
		msg = "Subscription not found"
	}
	return c.JSON(fiber.Map{"success": removed, "message": msg})
}

func (s *Server) handleUnsubscribeByID(c *fiber.Ctx) error {
	removed, err := s.subSvc.UnsubscribeByID(c.UserContext(), userIDFrom(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			return s.fail(c, http.StatusForbidden, "Forbidden")
		}
		s.log.Error(c.UserContext(), "remove subscription failed", "err", err)
		return s.fail(c, http.StatusInternalServerError, "Failed to remove subscription")
	}
	if !removed {
		return s.fail(c, http.StatusNotFound, "Subscription not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Subscription removed"})
}

func (s *Server) handleNotify(c *fiber.Ctx) error {
	var req model.NotifyRequest
	// an empty body sends the default reminder to the caller
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return s.fail(c, http.StatusBadRequest, "Invalid request body")
		}
	}
	res, err := s.notifySvc.Notify(c.UserContext(), userIDFrom(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			return s.fail(c, http.StatusForbidden, "Forbidden")
		case errors.Is(err, service.ErrUnauthorized):
			return s.fail(c, http.StatusUnauthorized, "Invalid JWT")
		case errors.Is(err, webpush.ErrPayloadTooLarge):
			return s.fail(c, http.StatusRequestEntityTooLarge, "Notification payload too large")
		}
		s.log.Error(c.UserContext(), "notify failed", "err", err)
		return s.fail(c, http.StatusInternalServerError, "Failed to process notification request")
	}
	return c.JSON(fiber.Map{"success": res.Success, "message": res.Message})
}

func (s *Server) handleAdminSummary(c *fiber.Ctx) error {
	summary, err := s.logSvc.Summary(c.UserContext())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("ok", summary))
}

func (s *Server) handleLogList(c *fiber.Ctx) error {
	page, err := s.logSvc.Query(c.UserContext(), parseLogFilter(c))
	if err != nil {
		return c.JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("delivery logs", page))
}

func (s *Server) handleLogCountDate(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByDate(c.UserContext(), c.Query("dateType", "day"), begin, end)
	if err != nil {
		return c.JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("count by date", data))
}

func (s *Server) handleLogCountStatus(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByStatus(c.UserContext(), begin, end)
	if err != nil {
		return c.JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("count by status", data))
}

func (s *Server) handleLogCountOrigin(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByOrigin(c.UserContext(), begin, end)
	if err != nil {
		return c.JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("count by origin", data))
}

func (s *Server) fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(model.PushError{Error: message})
}

func parseLogFilter(c *fiber.Ctx) model.DeliveryLogFilter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "10"))
	begin, end := parseTimeRange(c)
	return model.DeliveryLogFilter{
		UserID:    c.Query("userId"),
		Origin:    c.Query("origin"),
		Status:    c.Query("status"),
		BeginTime: begin,
		EndTime:   end,
		Page:      page,
		PageSize:  pageSize,
	}
}

func parseTimeRange(c *fiber.Ctx) (*time.Time, *time.Time) {
	begin := parseTime(c.Query("beginTime"))
	end := parseTime(c.Query("endTime"))
	return begin, end
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
