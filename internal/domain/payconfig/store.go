package payconfig

import (
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "clinic/internal/platform/crypto"
)

// Store reads the configuration tables written by the config management collaborator.
type Store struct {
	DB     *pgxpool.Pool
	cipher *cryptoutil.Cipher
}

func NewStore(db *pgxpool.Pool, cipher *cryptoutil.Cipher) *Store {
	return &Store{DB: db, cipher: cipher}
}
