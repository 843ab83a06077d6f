// Package models defines the persisted record types shared by the
// registry, control core, and edge proxy.
package models

import "time"

// AgentStatus is the lifecycle state of an Agent. The numeric values are
// part of the on-disk format: they are the fixed-width status byte used
// as the first component of agents_by_status keys, so their ordering is
// load-bearing and must never be renumbered.
type AgentStatus uint8

const (
	StatusProvisioning AgentStatus = iota
	StatusRunning
	StatusIdle
	StatusHibernating
	StatusStopping
	StatusStopped
	StatusError
)

func (s AgentStatus) String() string {
	switch s {
	case StatusProvisioning:
		return "provisioning"
	case StatusRunning:
		return "running"
	case StatusIdle:
		return "idle"
	case StatusHibernating:
		return "hibernating"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the seven defined lifecycle states.
func (s AgentStatus) Valid() bool {
	return s <= StatusError
}

// AgentSpec describes the resource footprint and runtime image an Agent
// is provisioned with.
type AgentSpec struct {
	CPUMillicores  int    `json:"cpu_millicores"`
	MemoryMB       int    `json:"memory_mb"`
	RuntimeVersion string `json:"runtime_version"`
}

const (
	MinCPUMillicores = 100
	MaxCPUMillicores = 4000
	MinMemoryMB      = 128
	MaxMemoryMB      = 8192

	DefaultRuntimeVersion = "v1"
)

// Agent is a long-lived logical workload owned by exactly one owner.
type Agent struct {
	AgentID         AgentID     `json:"agent_id"`
	OwnerID         OwnerID     `json:"owner_id"`
	Name            string      `json:"name"`
	Status          AgentStatus `json:"status"`
	Spec            AgentSpec   `json:"spec"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	LastHeartbeatAt *time.Time  `json:"last_heartbeat_at,omitempty"`
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus uint8

const (
	SessionActive SessionStatus = iota
	SessionClosed
)

func (s SessionStatus) String() string {
	if s == SessionActive {
		return "active"
	}
	return "closed"
}

// Session is an attachment of a client to an Agent.
type Session struct {
	SessionID SessionID     `json:"session_id"`
	AgentID   AgentID       `json:"agent_id"`
	OwnerID   OwnerID       `json:"owner_id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
}

// CachedUser is a denormalized snapshot of the last successful identity
// validation for an owner, keyed by owner_id. It is a soft cache only;
// the external identity service remains authoritative.
type CachedUser struct {
	OwnerID     OwnerID     `json:"owner_id"`
	NamespaceID NamespaceID `json:"namespace_id"`
	MFAFlag     bool        `json:"mfa_flag"`
	LastSeenAt  time.Time   `json:"last_seen_at"`
}

// HeartbeatReport is the body an agent pod posts to the internal
// heartbeat endpoint.
type HeartbeatReport struct {
	AgentID        AgentID     `json:"agent_id"`
	Status         AgentStatus `json:"status"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	ActiveSessions int         `json:"active_sessions"`
	LastError      string      `json:"last_error,omitempty"`
}
