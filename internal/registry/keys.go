// Package registry implements the owner-scoped durable store for agent,
// session, and user-cache records on top of an embedded key-value
// database (bbolt), following the data model's five logical key spaces.
package registry

import (
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Bucket names, one per logical key space in the data model.
var (
	bucketAgents          = []byte("agents")
	bucketAgentsByStatus  = []byte("agents_by_status")
	bucketSessions        = []byte("sessions")
	bucketSessionsByAgent = []byte("sessions_by_agent")
	bucketUsers           = []byte("users")
)

var allBuckets = [][]byte{
	bucketAgents,
	bucketAgentsByStatus,
	bucketSessions,
	bucketSessionsByAgent,
	bucketUsers,
}

// agentKey builds the 64-byte owner_id‖agent_id key for the agents
// bucket.
func agentKey(owner models.OwnerID, agent models.AgentID) []byte {
	k := make([]byte, 64)
	copy(k[0:32], owner[:])
	copy(k[32:64], agent[:])
	return k
}

// agentStatusKey builds the 65-byte status‖owner_id‖agent_id key for the
// agents_by_status bucket. The status byte leads so prefix scans group
// by lifecycle state.
func agentStatusKey(status models.AgentStatus, owner models.OwnerID, agent models.AgentID) []byte {
	k := make([]byte, 65)
	k[0] = byte(status)
	copy(k[1:33], owner[:])
	copy(k[33:65], agent[:])
	return k
}

func sessionKey(session models.SessionID) []byte {
	k := make([]byte, 16)
	copy(k, session[:])
	return k
}

// sessionByAgentKey builds the 48-byte agent_id‖session_id key for the
// sessions_by_agent bucket.
func sessionByAgentKey(agent models.AgentID, session models.SessionID) []byte {
	k := make([]byte, 48)
	copy(k[0:32], agent[:])
	copy(k[32:48], session[:])
	return k
}

func userKey(owner models.OwnerID) []byte {
	k := make([]byte, 32)
	copy(k, owner[:])
	return k
}

// statusPrefix returns the one-byte prefix used to scan agents_by_status
// for a single lifecycle state.
func statusPrefix(status models.AgentStatus) []byte {
	return []byte{byte(status)}
}
