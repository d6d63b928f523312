package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"

	"cinesync/internal/hertzapi"
	"cinesync/internal/httpapi"
	"cinesync/internal/rooms"
)

func main() {
	registry := rooms.NewRegistry()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	engine := os.Getenv("SYNCD_ENGINE")
	switch engine {
	case "", "hertz":
		h := server.Default(server.WithHostPorts(addr))
		router := hertzapi.NewRouter(h, registry)

		go func() {
			log.Printf("Starting hertz server on %s", addr)
			router.Spin()
		}()

		<-stop
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := router.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}

	case "echo":
		api := httpapi.NewServer(registry)
		srv := &http.Server{Addr: addr, Handler: api.Router()}

		go func() {
			log.Printf("Starting echo server on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}()

		<-stop
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}

	default:
		log.Fatalf("Unknown SYNCD_ENGINE %q (want hertz or echo)", engine)
	}

	log.Println("Server stopped")
}
