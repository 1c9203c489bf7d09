// Command rnode-server is a minimal standalone binary demonstrating how
// an embedding application wires the four subsystems together: it is not
// itself the product, the internal/server package is.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s00d/rnode-server/internal/bridge"
	"github.com/s00d/rnode-server/internal/config"
	"github.com/s00d/rnode-server/internal/middleware"
	"github.com/s00d/rnode-server/internal/router"
	"github.com/s00d/rnode-server/internal/server"
	"github.com/s00d/rnode-server/internal/websocket"
)

func main() {
	cfg := config.Load()

	// handler is the cross-runtime callback every bridge.Ticket lands on.
	// A real embedder supplies the single-threaded script executor here;
	// this demo handler just echoes the ticket's request back.
	handler := func(t *bridge.Ticket) (any, error) {
		return map[string]any{"echo": t.Request, "params": t.Params}, nil
	}

	srv, err := server.New(cfg, server.Options{Handler: handler})
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	srv.Use("*", middleware.RequestID())
	srv.Use("*", middleware.StructuredLogger())
	srv.Use("*", middleware.SecurityHeaders())
	srv.Use("*", middleware.DefaultSizeLimiter())
	srv.Use("*", middleware.GzipWithExclusions(middleware.BestSpeed, []string{"/websocket/", "/metrics"}))

	registerDemoRoutes(srv)

	srv.RegisterWebSocket("/ws/echo", websocket.Callbacks{
		OnMessage: func(conn *websocket.Connection, data json.RawMessage) websocket.CallbackResult {
			return websocket.CallbackResult{Kind: websocket.Default}
		},
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received %v, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func registerDemoRoutes(srv *server.Server) {
	_ = srv.Handle("GET", "/api/ticket", func(req *router.Request, resp *router.Response) {
		body, _ := req.Body()
		var payload any
		if len(body) > 0 {
			_ = json.Unmarshal(body, &payload)
		}

		result, err := srv.Bridge.Submit(req.Context(), payload, paramsToAny(req.Params), 5*time.Second)
		if err != nil {
			resp.Status(502).JSON(map[string]any{"success": false, "error": err.Error()})
			return
		}
		resp.JSON(map[string]any{"success": true, "result": result})
	})

	_ = srv.Handle("GET", "/api/cache/{key}", func(req *router.Request, resp *router.Response) {
		key := req.Param("key")
		entry, ok := srv.Cache.Get(req.Context(), key, nil)
		if !ok {
			resp.Status(404).JSON(map[string]any{"success": false, "error": "cache miss"})
			return
		}
		resp.Bytes(entry.Value, entry.ContentType)
	})

	_ = srv.Handle("PUT", "/api/cache/{key}", func(req *router.Request, resp *router.Response) {
		key := req.Param("key")
		body, _ := req.Body()
		tag := req.Query.Get("tag")
		var tags []string
		if tag != "" {
			tags = []string{tag}
		}
		ok, err := srv.Cache.Set(req.Context(), key, body, req.Header.Get("Content-Type"), 0, tags)
		if err != nil {
			resp.Status(400).JSON(map[string]any{"success": false, "error": err.Error()})
			return
		}
		resp.JSON(map[string]any{"success": ok})
	})

	_ = srv.Handle("POST", "/api/cache/flush", func(req *router.Request, resp *router.Response) {
		tag := req.Query.Get("tag")
		if tag == "" {
			resp.Status(400).JSON(map[string]any{"success": false, "error": "tag query param required"})
			return
		}
		n := srv.Cache.FlushByTags(req.Context(), []string{tag})
		resp.JSON(map[string]any{"success": true, "removed": n})
	})
}

func paramsToAny(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
