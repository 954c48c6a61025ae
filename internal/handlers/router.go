package handlers

import (
	"net/http"

	"langexam/internal/config"
	"langexam/internal/db"
	"langexam/internal/middleware"
	"langexam/internal/store"
	"langexam/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Handler struct {
	reconcileDB store.Selecter
	txRunner    db.TxRunner
	cfg         config.Config
	logger      *zap.Logger
	users       UserStore
	ledger      LedgerStore
	sessions    SessionStore
	content     ContentStore
	admin       AdminStore
	audit       AuditStore
	exams       ExamService
	billing     BillingService
	hub         *websocket.Hub
	limiter     middleware.RateLimiter
}

func New(reconcileDB store.Selecter, txRunner db.TxRunner, cfg config.Config, logger *zap.Logger, users UserStore, ledger LedgerStore, sessions SessionStore, content ContentStore, admin AdminStore, audit AuditStore, exams ExamService, billing BillingService, hub *websocket.Hub, limiter middleware.RateLimiter) *Handler {
	return &Handler{
		reconcileDB: reconcileDB,
		txRunner:    txRunner,
		cfg:         cfg,
		logger:      logger,
		users:       users,
		ledger:      ledger,
		sessions:    sessions,
		content:     content,
		admin:       admin,
		audit:       audit,
		exams:       exams,
		billing:     billing,
		hub:         hub,
		limiter:     limiter,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret, h.users)
	limited := func(action string) func(http.Handler) http.Handler {
		return middleware.RateLimit(h.limiter, action, h.logger)
	}

	router.Route("/auth", func(r chi.Router) {
		r.With(limited("register")).Post("/register", h.Register)
		r.With(limited("login")).Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
	})

	router.Route("/credits", func(r chi.Router) {
		r.Use(authed)
		r.Get("/balance", h.Balance)
		r.Get("/ledger", h.ListLedger)
		r.Get("/packs", h.ListPacks)
		r.With(limited("checkout")).Post("/checkout", h.Checkout)
	})

	router.Route("/exams", func(r chi.Router) {
		r.Use(authed)
		r.With(limited("exam_start")).Post("/start", h.StartExam)
		r.Post("/{id}/submit", h.SubmitExam)
		r.Get("/{id}", h.GetExam)
		r.Get("/", h.ListExams)
	})

	router.Get("/ws/balance", h.WSBalance)
	router.Post("/webhooks/payment", h.PaymentWebhook)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageContent)).Post("/content", h.CreateContent)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageContent)).Put("/content/{id}", h.UpdateContent)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageContent)).Post("/content/{id}/publish", h.PublishContent)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageContent)).Delete("/content/{id}", h.DeleteContent)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageContent)).Get("/content", h.ListContent)
		r.With(middleware.RequireAdmin(h.admin, store.RoleGrantCredits)).Post("/credits/grant", h.GrantCredits)
		r.With(middleware.RequireAdmin(h.admin, store.RoleRefund)).Post("/refund", h.Refund)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewUsers)).Get("/users", h.AdminListUsers)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewUsers)).Post("/users/{id}/disable", h.DisableUser)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewUsers)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewUsers)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
