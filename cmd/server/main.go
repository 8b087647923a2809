// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/chatwave/lowcard/internal/auth"
	"github.com/chatwave/lowcard/internal/cache"
	"github.com/chatwave/lowcard/internal/database"
	"github.com/chatwave/lowcard/internal/handlers"
	"github.com/chatwave/lowcard/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := cache.ConnectRedis(); err != nil {
		// Action history is best-effort; the game runs without it.
		logger.Warnf("redis unavailable, action history disabled: %v", err)
		cache.Rdb = nil
	}

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/claim", handlers.ClaimEphemeralHandler)

	// room websocket hub
	rs := handlers.NewRoomServer(logger)

	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	// vip badge endpoints
	mux.Handle("/badges/assign", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.AssignBadgeHandler(rs),
	)))
	mux.Handle("/badges/remove", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RemoveBadgeHandler(rs),
	)))
	mux.Handle("/badges/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListBadgesHandler(rs),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
