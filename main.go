package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var cfg Config

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler authenticates and admits one sync connection. The room name is
// the path segment; the optional bearer token rides in the query string
// because browsers cannot set headers on websocket dials. A bad token is
// rejected with a policy-violation close before the relay sees the
// connection; no token means an anonymous session.
func wsHandler(rl *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["room"]
		user, authErr := authenticate(r.URL.Query().Get("token"))

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade failed", "err", err)
			return
		}
		if authErr != nil {
			slog.Info("rejecting connection", "room", room, "err", authErr)
			deadline := time.Now().Add(writeWait)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
			ws.Close()
			return
		}

		c := newConn(ws, room, user)
		go c.writePump()
		rl.serve(room, c)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// corsMiddleware allows the configured frontend origin on the REST surface.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", cfg.FrontendURL)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newRouter(rl *Relay) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/ws/{room}", wsHandler(rl))
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/api/health", healthHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", registerHandler).Methods("POST")
	api.HandleFunc("/auth/login", loginHandler).Methods("POST")
	api.HandleFunc("/auth/refresh", refreshHandler).Methods("POST")
	api.HandleFunc("/auth/me", meHandler).Methods("GET")
	api.HandleFunc("/auth/logout", logoutHandler).Methods("POST")
	api.HandleFunc("/auth/google", oauthLoginHandler(googleOAuthConfig)).Methods("GET")
	api.HandleFunc("/auth/google/callback", googleCallbackHandler).Methods("GET")
	api.HandleFunc("/auth/github", oauthLoginHandler(githubOAuthConfig)).Methods("GET")
	api.HandleFunc("/auth/github/callback", githubCallbackHandler).Methods("GET")

	api.HandleFunc("/boards", listBoardsHandler).Methods("GET")
	api.HandleFunc("/boards", createBoardHandler).Methods("POST")
	api.HandleFunc("/boards/{board_id}", getBoardHandler).Methods("GET")
	api.HandleFunc("/boards/{board_id}", updateBoardHandler).Methods("PATCH")
	api.HandleFunc("/boards/{board_id}", deleteBoardHandler).Methods("DELETE")
	api.HandleFunc("/boards/{board_id}/duplicate", duplicateBoardHandler).Methods("POST")

	api.HandleFunc("/boards/{board_id}/comments", listCommentsHandler).Methods("GET")
	api.HandleFunc("/boards/{board_id}/comments", createCommentHandler).Methods("POST")
	api.HandleFunc("/comments/{comment_id}", updateCommentHandler).Methods("PATCH")
	api.HandleFunc("/comments/{comment_id}", deleteCommentHandler).Methods("DELETE")

	api.HandleFunc("/boards/{board_id}/invite", createInviteHandler).Methods("POST")
	api.HandleFunc("/invites/{invite_id}/accept", acceptInviteHandler).Methods("POST")
	api.HandleFunc("/boards/{board_id}/members", listMembersHandler).Methods("GET")
	api.HandleFunc("/boards/{board_id}/members/{user_id}", updateMemberHandler).Methods("PATCH")
	api.HandleFunc("/boards/{board_id}/members/{user_id}", removeMemberHandler).Methods("DELETE")

	return router
}

func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	cfg = loadConfig()
	setupLogger(cfg.LogLevel)
	tokenSecret = []byte(cfg.SecretKey)

	if err := initDB(cfg.DatabaseURL); err != nil {
		slog.Error("database init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	relay := newRelay(RegistryConfig{RetainEmptyRooms: cfg.RetainEmptyRooms})
	if err := relay.start(); err != nil {
		slog.Error("relay start failed", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     newRouter(relay),
		ReadTimeout: 0, // long-lived websocket reads manage their own deadlines
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the relay first: closing its connections lets the blocked
	// upgrade handlers return, which is what Shutdown waits on.
	if err := relay.stop(ctx); err != nil {
		slog.Error("relay stop error", "err", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}
}
