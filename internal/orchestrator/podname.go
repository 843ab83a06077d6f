package orchestrator

import (
	"encoding/hex"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// podNamePrefix precedes the truncated hex agent_id in a derived pod
// name.
const podNamePrefix = "agent-"

// PodName derives the pod name for agentID. Pod name is a pure function
// of agent_id alone, which is what guarantees at-most-one pod per agent
// under a create-if-absent discipline.
func PodName(agentID models.AgentID) string {
	return podNamePrefix + hex.EncodeToString(agentID[:])[:16]
}

// AgentLabel is the pod label carrying the full agent_id, used to
// recover agent_id from a watch event. The watch itself selects pods
// on the app=swarm-agent label.
const AgentLabel = "aura-swarm/agent-id"

// OwnerLabel carries the owning principal, used only for operational
// filtering; ownership enforcement itself lives in the control core.
const OwnerLabel = "aura-swarm/owner-id"

// AgentIDFromLabel decodes the full hex agent_id carried in AgentLabel.
func AgentIDFromLabel(label string) (models.AgentID, error) {
	var id models.AgentID
	b, err := hex.DecodeString(label)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errWrongLabelLength(len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}
