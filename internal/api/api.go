package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kodbank/kodbank/internal/config"
	"github.com/kodbank/kodbank/internal/lib/jwt"
	"github.com/kodbank/kodbank/internal/service"
)

type ctxKey string

const userIDKey ctxKey = "userid"

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	users     *service.UserService
	transfers *service.TransferService
	jwtSecret []byte
}

func New(config *config.Config, logger *slog.Logger, users *service.UserService, transfers *service.TransferService) *APIServer {
	return &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr: config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
		},
		users:     users,
		transfers: transfers,
		jwtSecret: []byte(config.JwtSecret),
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	s.server.Handler = s.Router()

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.withRequestID)
	router.HandleFunc("/api/register", s.registerHandler()).Methods("POST")
	router.HandleFunc("/api/login", s.loginHandler()).Methods("POST")
	router.HandleFunc("/api/balance", s.authenticate(s.balanceHandler())).Methods("GET")
	router.HandleFunc("/api/transfer", s.authenticate(s.transferHandler())).Methods("POST")
	router.HandleFunc("/api/transactions", s.authenticate(s.transactionsHandler())).Methods("GET")
	router.HandleFunc("/health", s.healthHandler()).Methods("GET")
	router.HandleFunc("/", s.indexHandler()).Methods("GET")
	return router
}

// withRequestID tags every request with an id that is echoed back to the
// client and attached to the request log line.
func (s *APIServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		s.logger.Debug("Incoming request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "Missing token")
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		userID, err := jwt.ParseToken(parts[1], string(s.jwtSecret))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		next(w, r)
	}
}

// actingUserID returns the identity the auth middleware attached.
func actingUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
