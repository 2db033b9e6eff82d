package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pulse/internal/dispatch"
	"pulse/internal/fanout"
	"pulse/internal/gateway"
	"pulse/internal/health"
	jwttoken "pulse/internal/jwt_token"
	"pulse/internal/offline"
	"pulse/internal/platform/config"
	"pulse/internal/platform/httpserver"
	"pulse/internal/platform/logger"
	"pulse/internal/platform/metrics"
	"pulse/internal/platform/middleware"
	platformredis "pulse/internal/platform/redis"
	"pulse/internal/push"
	"pulse/internal/registry"
	"pulse/internal/room"
	"pulse/internal/ticket"
	tickethandler "pulse/internal/ticket/handler"
)

// deliveryBridge is what main needs from either bridge implementation: the
// fanout surface plus the late Bind that breaks the bridge/registry cycle.
type deliveryBridge interface {
	fanout.Bridge
	Bind(fanout.LocalSink)
}

// jwtValidator adapts the token service to the middleware's validator shape.
type jwtValidator struct {
	svc *jwttoken.JWTService
}

func (v jwtValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := v.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{UserID: claims.UserID, ClientID: claims.ClientID}, nil
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Delivery logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	rc, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// With Redis the fleet shares tickets, offline backlogs, and pub/sub
	// fanout; without it the process runs standalone with in-memory stores
	// and local-only delivery.
	var (
		tickets ticket.Store
		queue   offline.Queue
		bridge  deliveryBridge
	)
	if rc != nil {
		tickets = ticket.NewRedisStore(rc.Client)
		queue = offline.NewRedisQueue(rc.Client)
		bridge = fanout.NewRedisBridge(rc.Client, queue, log, m)
		m.SetBrokerHealthy(true)
	} else {
		log.Warn("redis not configured, running with local-only delivery")
		tickets = ticket.NewMemoryStore()
		queue = offline.NewMemoryQueue()
		bridge = fanout.NewLocalBridge(queue, log, m)
	}

	rooms := room.NewDirectory(bridge)
	reg := registry.New(bridge, queue, rooms, log, m)
	bridge.Bind(reg)

	router := dispatch.NewRouter(log)
	dispatch.NewHandlers(bridge, rooms, log).Register(router)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "pulse", "pulse-ws")
	validator := jwtValidator{svc: jwtService}

	gw := gateway.New(gateway.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
	}, reg, router, tickets, jwtService, log, m)

	pushService := push.NewService(bridge, log)

	r := chi.NewRouter()
	gw.Register(r)
	tickethandler.New(tickets, log, validator).Register(r)
	push.NewHandler(pushService, log, validator).Register(r)
	health.New(reg, bridge).Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if rb, ok := bridge.(*fanout.RedisBridge); ok {
		g.Go(func() error {
			return rb.Run(ctx)
		})
	}

	g.Go(func() error {
		log.Info("starting pulse", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		// Stop accepting handshakes, then close live sockets so clients
		// reconnect elsewhere and their traffic parks in the offline queue.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		reg.CloseAll()

		if rc != nil {
			if err := rc.Close(); err != nil {
				log.Error("redis close failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("pulse stopped")
}
