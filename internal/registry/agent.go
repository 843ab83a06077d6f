package registry

import (
	"bytes"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// PutAgent upserts an agent record. If a prior record existed with a
// different status, the old agents_by_status index entry is removed and
// the new one written in the same atomic batch.
func (r *Registry) PutAgent(a *models.Agent) error {
	key := agentKey(a.OwnerID, a.AgentID)
	value, err := json.Marshal(a)
	if err != nil {
		return errStorage("encode agent", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		agents := tx.Bucket(bucketAgents)
		byStatus := tx.Bucket(bucketAgentsByStatus)

		if existing := agents.Get(key); existing != nil {
			var prev models.Agent
			if err := json.Unmarshal(existing, &prev); err != nil {
				return errStorage("decode existing agent", err)
			}
			if prev.Status != a.Status {
				if err := byStatus.Delete(agentStatusKey(prev.Status, a.OwnerID, a.AgentID)); err != nil {
					return errStorage("delete stale status index", err)
				}
			}
		}

		if err := agents.Put(key, value); err != nil {
			return errStorage("put agent", err)
		}
		if err := byStatus.Put(agentStatusKey(a.Status, a.OwnerID, a.AgentID), nil); err != nil {
			return errStorage("put status index", err)
		}
		return nil
	})
}

// GetAgent performs an O(n) scan over the agents bucket, matching the
// data model's documented complexity: n is bounded in the low thousands
// per process, so no secondary agent_id→owner_id index is required.
func (r *Registry) GetAgent(agentID models.AgentID) (*models.Agent, error) {
	var found *models.Agent

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAgents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 64 {
				continue
			}
			if !bytes.Equal(k[32:64], agentID[:]) {
				continue
			}
			var a models.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return errStorage("decode agent", err)
			}
			found = &a
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errNotFound("agent")
	}
	return found, nil
}

// ListAgentsByOwner prefix-scans the agents bucket on owner_id, returning
// records in byte order of agent_id.
func (r *Registry) ListAgentsByOwner(ownerID models.OwnerID) ([]*models.Agent, error) {
	var out []*models.Agent

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAgents).Cursor()
		prefix := ownerID[:]
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var a models.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return errStorage("decode agent", err)
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountAgentsByOwner returns the number of agents owned by ownerID.
func (r *Registry) CountAgentsByOwner(ownerID models.OwnerID) (int, error) {
	agents, err := r.ListAgentsByOwner(ownerID)
	if err != nil {
		return 0, err
	}
	return len(agents), nil
}

// UpdateAgentStatus is a read-modify-write: it loads the current record,
// updates status and updated_at, and maintains the agents_by_status
// index. Callers above this layer (the control core) are responsible
// for serializing concurrent updates to the same agent_id.
func (r *Registry) UpdateAgentStatus(agentID models.AgentID, newStatus models.AgentStatus, now time.Time) error {
	a, err := r.GetAgent(agentID)
	if err != nil {
		return err
	}
	a.Status = newStatus
	a.UpdatedAt = now
	return r.PutAgent(a)
}

// DeleteAgent atomically removes the agent from both the agents and
// agents_by_status buckets. Session cleanup is the caller's
// responsibility, matching the data model's contract.
func (r *Registry) DeleteAgent(agentID models.AgentID) error {
	a, err := r.GetAgent(agentID)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketAgents).Delete(agentKey(a.OwnerID, a.AgentID)); err != nil {
			return errStorage("delete agent", err)
		}
		if err := tx.Bucket(bucketAgentsByStatus).Delete(agentStatusKey(a.Status, a.OwnerID, a.AgentID)); err != nil {
			return errStorage("delete status index", err)
		}
		return nil
	})
}

// ListAllAgents performs a full scan, used by administrative tooling
// and the idle detector.
func (r *Registry) ListAllAgents() ([]*models.Agent, error) {
	var out []*models.Agent

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAgents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a models.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return errStorage("decode agent", err)
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// listAgentsByStatus prefix-scans agents_by_status for a single
// lifecycle state; used by tests that need the index itself
// exercised, not just full scans.
func (r *Registry) listAgentsByStatus(status models.AgentStatus) ([]*models.Agent, error) {
	var refs []struct {
		owner models.OwnerID
		agent models.AgentID
	}

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAgentsByStatus).Cursor()
		prefix := statusPrefix(status)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if len(k) != 65 {
				continue
			}
			var owner models.OwnerID
			var agent models.AgentID
			copy(owner[:], k[1:33])
			copy(agent[:], k[33:65])
			refs = append(refs, struct {
				owner models.OwnerID
				agent models.AgentID
			}{owner, agent})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Agent, 0, len(refs))
	for _, ref := range refs {
		a, err := r.GetAgent(ref.agent)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
