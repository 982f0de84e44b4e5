package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pingpong-elo-server/api"
	"pingpong-elo-server/auth"
	"pingpong-elo-server/config"
	"pingpong-elo-server/loghandler"
	"pingpong-elo-server/session"
	"pingpong-elo-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found; using environment variables.")
	}

	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, slog.LevelInfo)))

	cfg := config.Load()

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("generate session secret: %v", err)
		}
		log.Print("SESSION_SECRET is not set; generated a random secret, sessions won't survive a restart.")
	}

	if cfg.AuthBaseURL == "" {
		log.Print("Auth: AUTH_BASE_URL is not set — sign-in with external provider tokens is disabled.")
	} else {
		log.Printf("Auth: external provider configured (base URL: %s)", cfg.AuthBaseURL)
	}

	log.Printf("Configuration: HTTPPort=%d, DefaultKFactor=%d, KFactorRange=[%d,%d], SessionTTLMinutes=%d, Users=%d",
		cfg.HTTPPort, cfg.DefaultKFactor, cfg.KFactorMin, cfg.KFactorMax, cfg.SessionTTLMinutes, len(cfg.Users))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer := auth.NewSigner(secret)

	sessions := session.NewManager(cfg.DefaultKFactor, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	go sessions.Sweep(ctx)

	hub := ws.NewHub(signer, sessions)
	go hub.Run(ctx)

	handler := api.NewHandler(cfg, sessions, signer, hub)
	router := handler.Router()
	router.HandleFunc("/ws", hub.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("Elo scoreboard server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
