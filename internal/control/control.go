// Package control implements the control core: the agent lifecycle
// state machine, session issuance, ownership enforcement, heartbeat
// ingestion, idle detection, and the hibernate/wake sequencing
// contracts, built over the registry and orchestrator driver seams.
package control

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cypher-asi/aura-swarm/internal/logger"
	"github.com/cypher-asi/aura-swarm/internal/models"
	"github.com/cypher-asi/aura-swarm/internal/orchestrator"
	"github.com/cypher-asi/aura-swarm/internal/registry"
)

// Config tunes the control core's policy knobs.
type Config struct {
	MaxAgentsPerOwner   int
	IdleTimeout         time.Duration
	WakeTimeout         time.Duration
	IdleCheckPeriod     time.Duration
	HealthCheckPeriod   time.Duration
	HealthFailThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAgentsPerOwner:   10,
		IdleTimeout:         15 * time.Minute,
		WakeTimeout:         60 * time.Second,
		IdleCheckPeriod:     60 * time.Second,
		HealthCheckPeriod:   60 * time.Second,
		HealthFailThreshold: 3,
	}
}

// Core is the control core. It holds no durable state of its own:
// every mutation round-trips through the registry, and every pod
// command round-trips through the orchestrator driver.
type Core struct {
	cfg   Config
	store registry.Store
	orch  orchestrator.Driver
	locks *agentLocks
	log   *zerolog.Logger

	strikesMu sync.Mutex
	strikes   map[models.AgentID]int

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Core over the given registry and orchestrator driver
// seams.
func New(cfg Config, store registry.Store, orch orchestrator.Driver) *Core {
	return &Core{
		cfg:     cfg,
		store:   store,
		orch:    orch,
		locks:   newAgentLocks(),
		log:     logger.Control(),
		strikes: make(map[models.AgentID]int),
		stop:    make(chan struct{}),
	}
}
