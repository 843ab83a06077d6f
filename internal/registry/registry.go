package registry

import (
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/logger"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Store is the capability seam the control core and reconciler depend on for durable
// persistence. Production wires *Registry; tests wire an in-memory
// fake (see registry/registrytest) so the control core's lifecycle
// logic can be exercised without a real database file.
type Store interface {
	PutAgent(a *models.Agent) error
	GetAgent(agentID models.AgentID) (*models.Agent, error)
	ListAgentsByOwner(ownerID models.OwnerID) ([]*models.Agent, error)
	CountAgentsByOwner(ownerID models.OwnerID) (int, error)
	UpdateAgentStatus(agentID models.AgentID, newStatus models.AgentStatus, now time.Time) error
	DeleteAgent(agentID models.AgentID) error
	ListAllAgents() ([]*models.Agent, error)

	PutSession(s *models.Session) error
	GetSession(sessionID models.SessionID) (*models.Session, error)
	UpdateSessionStatus(sessionID models.SessionID, status models.SessionStatus, closedAt *time.Time) error
	ListSessionsByAgent(agentID models.AgentID) ([]*models.Session, error)

	PutUser(u *models.CachedUser) error
	GetUser(ownerID models.OwnerID) (*models.CachedUser, error)

	Close() error
}

// Registry is the bbolt-backed implementation of Store. All operations
// are synchronous and serializable within this process: bbolt's
// single-writer transaction model already gives the serialization the
// data model calls for within one batch, so no extra locking is needed
// at this layer. The per-agent mutex discipline above this layer, in
// the control core, exists for multi-step read-modify-write sequences
// that span several calls, which a single bbolt transaction cannot.
type Registry struct {
	db  *bbolt.DB
	log *zerolog.Logger
}

// Open creates or opens a bbolt database file at path and ensures all
// five logical buckets exist.
func Open(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, apierrors.NewInternal("failed to open registry database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, apierrors.NewInternal("failed to initialize registry buckets", err)
	}

	return &Registry{db: db, log: logger.Registry()}, nil
}

// Close releases the underlying database file.
func (r *Registry) Close() error {
	return r.db.Close()
}

// HealthCheck performs a cheap read-only transaction to confirm the
// store is responsive, used by the /health endpoint.
func (r *Registry) HealthCheck() error {
	return r.db.View(func(tx *bbolt.Tx) error {
		return nil
	})
}
