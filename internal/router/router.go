// Package router defines the HTTP routing and handlers of the dashboard
// backend. It exposes the /auth endpoints, health and ping probes, trusted
// internal stats and the embedded frontend.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/dashboard/internal/auth"
	"github.com/patric-chuzhbe/dashboard/internal/gzippedhttp"
	"github.com/patric-chuzhbe/dashboard/internal/logger"
	"github.com/patric-chuzhbe/dashboard/internal/service"
	"github.com/patric-chuzhbe/dashboard/internal/user"
	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

const (
	msgUserCreated         = "User created successfully"
	msgLoginSuccessful     = "Login successful"
	msgUserAlreadyExists   = "User already exists"
	msgInvalidCredentials  = "Invalid credentials"
	msgUserNotFound        = "User not found"
	msgRouteNotFound       = "Route not found"
	msgMethodNotAllowed    = "Method not allowed"
	msgInvalidRequestBody  = "Invalid request body"
	msgInternalServerError = "Internal server error"
	msgForbidden           = "Forbidden"

	serviceName = "backend"

	maxRequestBodyBytes = 1 << 20
)

type authService interface {
	Register(ctx context.Context, email, plaintext, name string) (*service.AuthResult, error)
	Login(ctx context.Context, email, plaintext string) (*service.AuthResult, error)
	Profile(ctx context.Context, claims *auth.Claims) (user.Public, error)
}

type statsService interface {
	GetInternalStats(ctx context.Context) (service.InternalStats, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type appService interface {
	authService
	statsService
	pinger
}

type authenticator interface {
	Authenticate(h http.Handler) http.Handler
}

type subnetChecker interface {
	IsTrustedSubnetEmpty() bool
	GetClientIP(request *http.Request) (net.IP, error)
	Check(clientIP net.IP) bool
}

// Router holds the dependencies of the HTTP handlers.
type Router struct {
	service   appService
	ipChecker subnetChecker
	now       func() time.Time
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    user.Public `json:"user"`
}

type profileResponse struct {
	User user.Public `json:"user"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PostRegister creates a user and answers with a token for it.
func (r *Router) PostRegister(res http.ResponseWriter, req *http.Request) {
	var request registerRequest
	if !decodeJSON(res, req, &request) {
		return
	}

	result, err := r.service.Register(req.Context(), request.Email, request.Password, request.Name)
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusCreated, authResponse{
		Message: msgUserCreated,
		Token:   result.Token,
		User:    result.User,
	})
}

// PostLogin exchanges credentials for a token.
func (r *Router) PostLogin(res http.ResponseWriter, req *http.Request) {
	var request loginRequest
	if !decodeJSON(res, req, &request) {
		return
	}

	result, err := r.service.Login(req.Context(), request.Email, request.Password)
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusOK, authResponse{
		Message: msgLoginSuccessful,
		Token:   result.Token,
		User:    result.User,
	})
}

// GetProfile returns the user identified by the verified token.
func (r *Router) GetProfile(res http.ResponseWriter, req *http.Request) {
	claims, ok := auth.ClaimsFromContext(req.Context())
	if !ok {
		writeError(res, http.StatusUnauthorized, auth.MsgNoToken)
		return
	}

	profile, err := r.service.Profile(req.Context(), claims)
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusOK, profileResponse{User: profile})
}

// GetHealth reports liveness without touching the store.
func (r *Router) GetHealth(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: r.now().UTC().Format(time.RFC3339),
		Service:   serviceName,
	})
}

// GetPing checks the store.
func (r *Router) GetPing(res http.ResponseWriter, req *http.Request) {
	if err := r.service.Ping(req.Context()); err != nil {
		logger.Log.Errorw("store ping failed", "request_id", middleware.GetReqID(req.Context()), zap.Error(err))
		writeError(res, http.StatusInternalServerError, msgInternalServerError)
		return
	}

	res.WriteHeader(http.StatusOK)
}

// GetInternalStats returns aggregate counters to clients from the trusted subnet.
func (r *Router) GetInternalStats(res http.ResponseWriter, req *http.Request) {
	if !r.isTrustedClient(req) {
		writeError(res, http.StatusForbidden, msgForbidden)
		return
	}

	stats, err := r.service.GetInternalStats(req.Context())
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusOK, stats)
}

func (r *Router) isTrustedClient(req *http.Request) bool {
	if r.ipChecker == nil || r.ipChecker.IsTrustedSubnetEmpty() {
		return false
	}

	clientIP, err := r.ipChecker.GetClientIP(req)
	if err != nil || clientIP == nil {
		return false
	}

	return r.ipChecker.Check(clientIP)
}

// NotFound answers every unmatched route.
func NotFound(res http.ResponseWriter, req *http.Request) {
	writeError(res, http.StatusNotFound, msgRouteNotFound)
}

// MethodNotAllowed answers a known route called with the wrong method.
func MethodNotAllowed(res http.ResponseWriter, req *http.Request) {
	writeError(res, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// Recoverer turns a panicking handler into a 500 JSON answer.
func Recoverer(h http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			logger.Log.Errorw(
				"panic while serving request",
				"request_id", middleware.GetReqID(req.Context()),
				"uri", req.RequestURI,
				"panic", recovered,
			)
			writeError(res, http.StatusInternalServerError, msgInternalServerError)
		}()

		h.ServeHTTP(res, req)
	})
}

func invalidRequestBody(res http.ResponseWriter, req *http.Request) {
	writeError(res, http.StatusBadRequest, msgInvalidRequestBody)
}

func decodeJSON(res http.ResponseWriter, req *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(res, req.Body, maxRequestBodyBytes))
	if err := decoder.Decode(target); err != nil {
		invalidRequestBody(res, req)
		return false
	}

	return true
}

func writeServiceError(res http.ResponseWriter, req *http.Request, err error) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeError(res, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, service.ErrConflict):
		writeError(res, http.StatusConflict, msgUserAlreadyExists)
	case errors.Is(err, service.ErrMissingCredentials):
		writeError(res, http.StatusBadRequest, validation.MsgMissingCredentials)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(res, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, service.ErrNotFound):
		writeError(res, http.StatusNotFound, msgUserNotFound)
	default:
		logger.Log.Errorw(
			"request failed",
			"request_id", middleware.GetReqID(req.Context()),
			"uri", req.RequestURI,
			zap.Error(err),
		)
		writeError(res, http.StatusInternalServerError, msgInternalServerError)
	}
}

func writeError(res http.ResponseWriter, status int, message string) {
	writeJSON(res, status, errorResponse{Error: message})
}

func writeJSON(res http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorw("response encoding failed", zap.Error(err))
		res.Header().Set("Content-Type", "application/json")
		res.WriteHeader(http.StatusInternalServerError)
		_, _ = res.Write([]byte(`{"error":"` + msgInternalServerError + `"}`))
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	if _, err := res.Write(body); err != nil {
		logger.Log.Debugw("response write failed", zap.Error(err))
	}
}

// New builds the chi router of the service. frontend may be nil, then only
// the API is served.
func New(
	svc appService,
	authMiddleware authenticator,
	ipChecker subnetChecker,
	frontend http.Handler,
	allowedOrigin string,
) *chi.Mux {
	myRouter := Router{
		service:   svc,
		ipChecker: ipChecker,
		now:       time.Now,
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		logger.WithLoggingHTTPMiddleware,
		Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{allowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		gzippedhttp.UngzipRequest(invalidRequestBody),
		middleware.Compress(5, "application/json", "text/html", "text/css", "application/javascript"),
	)

	router.NotFound(NotFound)
	router.MethodNotAllowed(MethodNotAllowed)

	router.Route("/auth", func(r chi.Router) {
		r.Post(`/register`, myRouter.PostRegister)
		r.Post(`/login`, myRouter.PostLogin)
		r.With(authMiddleware.Authenticate).Get(`/profile`, myRouter.GetProfile)
	})

	router.Get(`/health`, myRouter.GetHealth)
	router.Get(`/ping`, myRouter.GetPing)
	router.Get(`/internal/stats`, myRouter.GetInternalStats)

	if frontend != nil {
		router.Get(`/`, frontend.ServeHTTP)
		router.Get(`/login`, frontend.ServeHTTP)
		router.Get(`/dashboard`, frontend.ServeHTTP)
		router.Handle(`/static/*`, frontend)
	}

	return router
}
