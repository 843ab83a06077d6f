package registry

import (
	"bytes"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// PutSession upserts a session record and maintains the
// sessions_by_agent index.
func (r *Registry) PutSession(s *models.Session) error {
	value, err := json.Marshal(s)
	if err != nil {
		return errStorage("encode session", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketSessions).Put(sessionKey(s.SessionID), value); err != nil {
			return errStorage("put session", err)
		}
		if err := tx.Bucket(bucketSessionsByAgent).Put(sessionByAgentKey(s.AgentID, s.SessionID), nil); err != nil {
			return errStorage("put session index", err)
		}
		return nil
	})
}

// GetSession looks up a session by its direct key.
func (r *Registry) GetSession(sessionID models.SessionID) (*models.Session, error) {
	var out *models.Session

	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get(sessionKey(sessionID))
		if v == nil {
			return nil
		}
		var s models.Session
		if err := json.Unmarshal(v, &s); err != nil {
			return errStorage("decode session", err)
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNotFound("session")
	}
	return out, nil
}

// UpdateSessionStatus updates a session's status and, when transitioning
// to Closed, its closed_at timestamp. A Closed session never returns to
// Active; callers (the control core) enforce that invariant.
func (r *Registry) UpdateSessionStatus(sessionID models.SessionID, status models.SessionStatus, closedAt *time.Time) error {
	s, err := r.GetSession(sessionID)
	if err != nil {
		return err
	}
	s.Status = status
	if status == models.SessionClosed {
		s.ClosedAt = closedAt
	}
	return r.PutSession(s)
}

// ListSessionsByAgent prefix-scans sessions_by_agent for agentID and
// resolves each referenced session record.
func (r *Registry) ListSessionsByAgent(agentID models.AgentID) ([]*models.Session, error) {
	var ids []models.SessionID

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSessionsByAgent).Cursor()
		prefix := agentID[:]
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if len(k) != 48 {
				continue
			}
			var sid models.SessionID
			copy(sid[:], k[32:48])
			ids = append(ids, sid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetSession(id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
