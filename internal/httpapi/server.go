package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"dsmessenger/config"
	"dsmessenger/internal/auth"
	"dsmessenger/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP gateway. It speaks plain JSON over the same mailbox
// store the TCP protocol server uses, with JWT bearer tokens instead of
// protocol session tokens.
type Server struct {
	config     *config.Config
	store      *store.Store
	jwtService *auth.Service
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the reply to POST /api/login.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
}

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// NewServer creates a new HTTP gateway server
func NewServer(cfg *config.Config, st *store.Store) *Server {
	return &Server{
		config:     cfg,
		store:      st,
		jwtService: auth.NewService(cfg.JWTSecret, "dsmessenger", cfg.JWTExpiration),
	}
}

// Router builds the gateway's route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	// CORS middleware
	router.Use(s.corsMiddleware)

	// Public routes (no auth required)
	router.HandleFunc("/api/login", s.handleLogin).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/health", s.handleHealth).Methods("GET", "OPTIONS")

	// Protected routes (JWT auth required)
	router.HandleFunc("/api/messages", s.jwtService.Middleware(s.handleGetMessages)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/messages/unread", s.jwtService.Middleware(s.handleGetUnread)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/messages/unread-count", s.jwtService.Middleware(s.handleUnreadCount)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/send", s.jwtService.Middleware(s.handleSend)).Methods("POST", "OPTIONS")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("🌐 HTTP gateway starting on %s", s.config.GetHTTPAddr())
	return http.ListenAndServe(s.config.GetHTTPAddr(), s.Router())
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		for _, allowedOrigin := range s.config.AllowedOrigins {
			if origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleLogin authenticates a user with the same auto-registration semantics
// as the TCP protocol: an unseen username becomes a fresh account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Failed to parse JSON request: %v", err))
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing_username", "Username is required")
		return
	}

	stored, created, err := s.store.AuthenticateOrRegister(req.Username, req.Password)
	if err != nil {
		log.Printf("Store failure during login for %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "store_failure", "Unable to access the user store")
		return
	}
	if !created && stored != req.Password {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(LoginResponse{
			Success: false,
			Message: "Invalid username or password",
		})
		return
	}

	token, err := s.jwtService.GenerateToken(req.Username)
	if err != nil {
		log.Printf("Failed to generate token: %v", err)
		writeError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	message := "Login successful"
	if created {
		message = "Account created"
	}
	json.NewEncoder(w).Encode(LoginResponse{
		Success:  true,
		Message:  message,
		Token:    token,
		Username: req.Username,
	})
}

// handleGetMessages returns every message for the authenticated user, sorted
// by timestamp. Like the protocol's fetch-all, it marks unread messages read.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	views, err := s.store.FetchAll(username)
	if err != nil {
		s.writeStoreError(w, username, err)
		return
	}
	if views == nil {
		views = []store.View{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// handleGetUnread returns and consumes the unread messages for the
// authenticated user.
func (s *Server) handleGetUnread(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	views, err := s.store.FetchUnread(username)
	if err != nil {
		s.writeStoreError(w, username, err)
		return
	}
	if views == nil {
		views = []store.View{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// handleUnreadCount returns the unread count without marking anything read.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	count, err := s.store.UnreadCount(username)
	if err != nil {
		s.writeStoreError(w, username, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"count": count})
}

// handleSend delivers a direct message from the authenticated user.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Failed to parse JSON request: %v", err))
		return
	}
	if req.Recipient == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "Both recipient and message are required")
		return
	}

	timestamp := float64(time.Now().UnixNano()) / 1e9
	sent, err := s.store.Send(username, req.Recipient, req.Message, timestamp)
	if err != nil {
		log.Printf("Store failure during send from %q: %v", username, err)
		writeError(w, http.StatusInternalServerError, "store_failure", "Failed to send message")
		return
	}
	if !sent {
		writeError(w, http.StatusNotFound, "recipient_not_found", "Recipient may not exist")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Direct message sent",
	})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) writeStoreError(w http.ResponseWriter, username string, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	log.Printf("Store failure for %q: %v", username, err)
	writeError(w, http.StatusInternalServerError, "store_failure", "Failed to access messages")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   code,
		"message": message,
	})
}
