// Package server assembles the HTTP router.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gigmarket/backend/internal/handler"
	appMiddleware "github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/service"
	"github.com/gigmarket/backend/internal/ws"
)

// Deps are the services the router exposes.
type Deps struct {
	Auth          *service.AuthService
	Subscriptions *service.SubscriptionService
	Webhooks      *service.WebhookService
	Admin         *service.AdminService
	Hub           *ws.Hub
	Health        map[string]handler.Pinger
	CORSOrigins   []string
}

// Global limiter: 20 req/sec per IP, burst of 40.
const (
	globalRPS   = 20
	globalBurst = 40
)

// NewRouter builds the full HTTP surface. Rate limiter housekeeping stops when ctx is done.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	authHandler := handler.NewAuthHandler(d.Auth)
	userHandler := handler.NewUserHandler(d.Auth)
	subHandler := handler.NewSubscriptionHandler(d.Subscriptions)
	webhookHandler := handler.NewWebhookHandler(d.Webhooks)
	adminHandler := handler.NewAdminHandler(d.Admin)
	healthHandler := handler.NewHealthHandler(d.Health)
	streamHandler := ws.NewStreamHandler(d.Hub, d.Auth, d.Subscriptions, d.CORSOrigins)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appMiddleware.NewRateLimiter(ctx, globalRPS, globalBurst).Middleware())

	r.Get("/health", healthHandler.Check)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.StrictRateLimiter(ctx))
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.With(appMiddleware.Auth(d.Auth)).Get("/me", authHandler.Me)
	})

	r.Route("/api/subscription", func(r chi.Router) {
		r.Get("/plans", subHandler.Plans)
		r.Post("/webhook", webhookHandler.Handle)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(d.Auth))
			r.Post("/create", subHandler.Create)
			r.Get("/status", subHandler.Status)
			r.Post("/verify-payment", subHandler.VerifyPayment)
			r.Get("/manage", subHandler.Manage)
			r.Patch("/manage", subHandler.UpdateSettings)
			r.Post("/usage", subHandler.RecordUsage)
			r.Get("/payments", subHandler.Payments)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(appMiddleware.Auth(d.Auth))
		r.Use(appMiddleware.AdminOnly)
		r.Get("/stats", adminHandler.GetStats)
		r.Get("/payments", adminHandler.ListPayments)
		r.Patch("/payments/{id}/status", adminHandler.UpdatePaymentStatus)
		r.Get("/users", userHandler.List)
		r.Post("/users", userHandler.Create)
		r.Delete("/users/{id}", userHandler.Delete)
	})

	// auth via ?token= since browsers cannot set headers on upgrades
	r.Get("/ws/subscription", streamHandler.Handle)

	return r
}
