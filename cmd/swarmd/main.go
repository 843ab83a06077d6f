// Command swarmd runs the aura-swarm control plane: the agent registry,
// identity adapter, orchestrator driver, control core, and edge proxy
// wired together behind one HTTP listener.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/control"
	"github.com/cypher-asi/aura-swarm/internal/edgeproxy"
	"github.com/cypher-asi/aura-swarm/internal/identity"
	"github.com/cypher-asi/aura-swarm/internal/logger"
	"github.com/cypher-asi/aura-swarm/internal/orchestrator"
	"github.com/cypher-asi/aura-swarm/internal/registry"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "false") == "true")
	log := logger.Log

	port := getEnv("API_PORT", "8000")
	dbPath := getEnv("REGISTRY_DB_PATH", "/var/lib/aura-swarm/registry.db")
	publicBaseURL := getEnv("PUBLIC_BASE_URL", "ws://localhost:"+port)
	maxConnsPerOwner := getEnvInt("MAX_CONNECTIONS_PER_OWNER", 10)

	issuerURL := getEnv("IDENTITY_ISSUER_URL", "")
	audience := getEnv("IDENTITY_AUDIENCE", "aura-swarm")

	namespace := getEnv("ORCHESTRATOR_NAMESPACE", "aura-swarm")
	runtimeClass := getEnv("RUNTIME_CLASS_NAME", "kata-fc")
	stateDirPath := getEnv("AGENT_STATE_DIR", "/state")
	statePVC := getEnv("STATE_PVC_CLAIM_NAME", "aura-swarm-state")
	callbackURL := getEnv("CONTROL_PLANE_URL", "http://aura-swarm-api."+namespace+".svc:"+port)

	maxAgentsPerOwner := getEnvInt("MAX_AGENTS_PER_OWNER", 10)
	idleTimeout := getEnvDuration("IDLE_TIMEOUT", 15*time.Minute)
	wakeTimeout := getEnvDuration("WAKE_TIMEOUT", 60*time.Second)
	idleCheckPeriod := getEnvDuration("IDLE_CHECK_PERIOD", 60*time.Second)
	healthCheckPeriod := getEnvDuration("HEALTH_CHECK_PERIOD", 60*time.Second)
	healthFailThreshold := getEnvInt("HEALTH_FAIL_THRESHOLD", 3)

	store, err := registry.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open registry")
	}
	defer store.Close()

	if issuerURL == "" {
		log.Fatal().Msg("IDENTITY_ISSUER_URL is required")
	}
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	validator, err := identity.NewAdapter(bootCtx, identity.Config{
		IssuerURL: issuerURL,
		Audience:  audience,
	})
	bootCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize identity adapter")
	}
	defer validator.Close()

	orch, err := orchestrator.NewClient(orchestrator.Config{
		Namespace:              namespace,
		RuntimeClassName:       runtimeClass,
		StateDirPath:           stateDirPath,
		StatePVCClaimName:      statePVC,
		ControlCoreCallbackURL: callbackURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator client")
	}

	core := control.New(control.Config{
		MaxAgentsPerOwner:   maxAgentsPerOwner,
		IdleTimeout:         idleTimeout,
		WakeTimeout:         wakeTimeout,
		IdleCheckPeriod:     idleCheckPeriod,
		HealthCheckPeriod:   healthCheckPeriod,
		HealthFailThreshold: healthFailThreshold,
	}, store, orch)
	core.StartIdleDetector()
	core.StartHealthMonitor()
	defer core.Stop()

	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	reconciler := orchestrator.NewReconciler(orch, store)
	go reconciler.Run(reconcilerCtx)

	proxy := edgeproxy.NewServer(edgeproxy.Config{
		PublicBaseURL:          publicBaseURL,
		MaxConnectionsPerOwner: maxConnsPerOwner,
	}, core, validator, store)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           proxy.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("control plane listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	stopReconciler()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
