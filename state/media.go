package state

import (
	"marketd/storage"
)

const mediumPrefix = "market/medium/"

func mediumKey(medium [20]byte) []byte { return append([]byte(mediumPrefix), medium[:]...) }

// MediumRegistry stores the set of token media accepted for payment besides
// the native medium. It backs the engine's accepted-medium oracle.
type MediumRegistry struct {
	db storage.Database
}

// NewMediumRegistry creates a medium registry over the given database.
func NewMediumRegistry(db storage.Database) *MediumRegistry {
	return &MediumRegistry{db: db}
}

// Enable marks the medium as accepted for payment.
func (r *MediumRegistry) Enable(medium [20]byte) error {
	return r.db.Put(mediumKey(medium), []byte{1})
}

// Disable removes the medium from the accepted set.
func (r *MediumRegistry) Disable(medium [20]byte) error {
	return r.db.Delete(mediumKey(medium))
}

// Enabled reports whether the medium is accepted for payment.
func (r *MediumRegistry) Enabled(medium [20]byte) bool {
	ok, err := r.db.Has(mediumKey(medium))
	return err == nil && ok
}
