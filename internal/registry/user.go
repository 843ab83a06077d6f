package registry

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// PutUser upserts the denormalized user-cache record for an owner. This
// is a soft cache only; the external identity service remains
// authoritative.
func (r *Registry) PutUser(u *models.CachedUser) error {
	value, err := json.Marshal(u)
	if err != nil {
		return errStorage("encode user", err)
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).Put(userKey(u.OwnerID), value)
	})
}

// GetUser looks up the cached user record for an owner.
func (r *Registry) GetUser(ownerID models.OwnerID) (*models.CachedUser, error) {
	var out *models.CachedUser

	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get(userKey(ownerID))
		if v == nil {
			return nil
		}
		var u models.CachedUser
		if err := json.Unmarshal(v, &u); err != nil {
			return errStorage("decode user", err)
		}
		out = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNotFound("user")
	}
	return out, nil
}
