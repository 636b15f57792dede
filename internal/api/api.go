package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/warikan"
)

type API struct {
	router      *mux.Router
	svc         *warikan.Service
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	discord     discordClient
	validate    *validator.Validate
	limiter     *ipRateLimiter
	metrics     *metrics.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*API)

func WithLogger(l *zap.Logger) Option { return func(a *API) { a.logger = l } }

func WithMetrics(r *metrics.Recorder) Option { return func(a *API) { a.metrics = r } }

func withDiscordClient(c discordClient) Option { return func(a *API) { a.discord = c } }

func New(cfg *config.Config, svc *warikan.Service, opts ...Option) *API {
	api := &API{
		router:    mux.NewRouter(),
		svc:       svc,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
		discord:  newDiscordHTTPClient(),
		validate: validator.New(),
		limiter:  newIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(api)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.requestLogger)

	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", a.metrics.Handler()).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Public endpoints
	a.router.HandleFunc("/api/currencies", a.handleCurrencies).Methods("GET")
	a.router.Handle("/api/settle", a.rateLimit(http.HandlerFunc(a.handleSettle))).Methods("POST")
	a.router.HandleFunc("/api/public/groups/{group_id}/settlement", a.handlePublicSettlement).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/user/guilds", a.handleUserGuilds).Methods("GET")
	protected.HandleFunc("/guilds/{guild_id}/groups", a.handleListGroups).Methods("GET")
	protected.HandleFunc("/guilds/{guild_id}/groups", a.handleCreateGroup).Methods("POST")

	protected.HandleFunc("/groups/{group_id}", a.handleGetGroup).Methods("GET")
	protected.HandleFunc("/groups/{group_id}", a.handleCloseGroup).Methods("DELETE")
	protected.HandleFunc("/groups/{group_id}/members", a.handleAddMember).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/expenses", a.handleAddExpense).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/expenses/{expense_id}", a.handleDeleteExpense).Methods("DELETE")
	protected.HandleFunc("/groups/{group_id}/rates/{currency}", a.handleSetRate).Methods("PUT")
	protected.HandleFunc("/groups/{group_id}/base-currency", a.handleSetBaseCurrency).Methods("PUT")
	protected.HandleFunc("/groups/{group_id}/settlement", a.handlePreviewSettlement).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/settle", a.handleSettleGroup).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/tasks", a.handleListTasks).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/tasks/complete", a.handleCompleteTask).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/payments", a.handleRecordPayment).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/statement.{format:xlsx|pdf}", a.handleStatement).Methods("GET")
}

// Handler returns the router wrapped in CORS.
func (a *API) Handler() http.Handler {
	// When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.logger.Info("API server stopped")
		return nil
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Currencies().List())
}
