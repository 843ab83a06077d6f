package models

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AgentID is a 32-byte opaque identifier generated by the control core.
type AgentID [32]byte

// OwnerID is a 32-byte opaque identifier of the owning principal.
type OwnerID [32]byte

// NamespaceID is a 32-byte opaque identifier scoping an identity claim.
type NamespaceID [32]byte

// SessionID is a 16-byte opaque identifier of a streaming attachment.
type SessionID [16]byte

// NewAgentID generates a fresh random AgentID.
func NewAgentID() (AgentID, error) {
	var id AgentID
	if _, err := rand.Read(id[:]); err != nil {
		return AgentID{}, err
	}
	return id, nil
}

// NewSessionID generates a fresh random SessionID. Session identifiers
// are 16 bytes, so a random v4 UUID is used directly.
func NewSessionID() (SessionID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

func (id AgentID) String() string     { return hex.EncodeToString(id[:]) }
func (id OwnerID) String() string     { return hex.EncodeToString(id[:]) }
func (id NamespaceID) String() string { return hex.EncodeToString(id[:]) }
func (id SessionID) String() string   { return hex.EncodeToString(id[:]) }

func (id AgentID) MarshalJSON() ([]byte, error)   { return json.Marshal(id.String()) }
func (id OwnerID) MarshalJSON() ([]byte, error)   { return json.Marshal(id.String()) }
func (id SessionID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

func (id *AgentID) UnmarshalJSON(data []byte) error {
	return unmarshalHexFixed(data, id[:])
}

func (id *OwnerID) UnmarshalJSON(data []byte) error {
	return unmarshalHexFixed(data, id[:])
}

func (id *SessionID) UnmarshalJSON(data []byte) error {
	return unmarshalHexFixed(data, id[:])
}

func unmarshalHexFixed(data []byte, dst []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("models: invalid hex identifier: %w", err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("models: identifier has wrong length: got %d want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}

// ParseAgentID decodes a hex-encoded agent identifier.
func ParseAgentID(s string) (AgentID, error) {
	var id AgentID
	if err := unmarshalHexFixed([]byte(`"`+s+`"`), id[:]); err != nil {
		return AgentID{}, err
	}
	return id, nil
}

// ParseSessionID decodes a hex-encoded session identifier.
func ParseSessionID(s string) (SessionID, error) {
	var id SessionID
	if err := unmarshalHexFixed([]byte(`"`+s+`"`), id[:]); err != nil {
		return SessionID{}, err
	}
	return id, nil
}
