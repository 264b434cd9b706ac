package nft

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"creditcore/crypto"
	"creditcore/storage"
)

var (
	// ErrTokenNotFound is returned for ids that were never minted or were
	// burned.
	ErrTokenNotFound = errors.New("nft: token not found")
	// ErrNotOwner is returned when a transfer names the wrong current owner.
	ErrNotOwner = errors.New("nft: sender does not own token")
)

const (
	nextIDKey      = "nft/nextId"
	tokenKeyPrefix = "nft/tokens/"
	ownerKeyPrefix = "nft/owners/"
)

// Token pairs a minted id with its current owner.
type Token struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
}

// Registry is the credit account token ledger. Ids are monotone starting
// at 1 and are never reused. Registries are constructed per transaction
// over the transaction's state; the credit engine serialises writers.
type Registry struct {
	db storage.Database
}

func NewRegistry(db storage.Database) *Registry {
	return &Registry{db: db}
}

func tokenKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", tokenKeyPrefix, id))
}

func ownerKey(owner crypto.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", ownerKeyPrefix, owner.String(), id))
}

// Mint allocates the next id and assigns it to owner.
func (r *Registry) Mint(owner crypto.Address) (uint64, error) {
	if owner.IsZero() {
		return 0, fmt.Errorf("nft: mint to zero address")
	}
	id, err := r.nextID()
	if err != nil {
		return 0, err
	}
	record := Token{ID: id, Owner: owner.String()}
	encoded, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("nft: encode token %d: %w", id, err)
	}
	if err := r.db.Put(tokenKey(id), encoded); err != nil {
		return 0, err
	}
	if err := r.db.Put(ownerKey(owner, id), []byte{1}); err != nil {
		return 0, err
	}
	if err := r.db.Put([]byte(nextIDKey), []byte(strconv.FormatUint(id+1, 10))); err != nil {
		return 0, err
	}
	return id, nil
}

// OwnerOf resolves the current owner of a token.
func (r *Registry) OwnerOf(id uint64) (crypto.Address, error) {
	token, err := r.token(id)
	if err != nil {
		return crypto.Address{}, err
	}
	owner, err := crypto.ParseAddress(token.Owner)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("nft: token %d owner: %w", id, err)
	}
	return owner, nil
}

// Transfer moves the token to a new owner. from must be the current owner.
func (r *Registry) Transfer(id uint64, from, to crypto.Address) error {
	if to.IsZero() {
		return fmt.Errorf("nft: transfer to zero address")
	}
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	if !owner.Equal(from) {
		return fmt.Errorf("%w: token %d", ErrNotOwner, id)
	}
	record := Token{ID: id, Owner: to.String()}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("nft: encode token %d: %w", id, err)
	}
	if err := r.db.Put(tokenKey(id), encoded); err != nil {
		return err
	}
	if err := r.db.Delete(ownerKey(from, id)); err != nil {
		return err
	}
	return r.db.Put(ownerKey(to, id), []byte{1})
}

// Burn removes the token. The caller is responsible for emptiness checks.
func (r *Registry) Burn(id uint64) error {
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	if err := r.db.Delete(tokenKey(id)); err != nil {
		return err
	}
	return r.db.Delete(ownerKey(owner, id))
}

// TokensByOwner lists the owner's token ids after the cursor, ascending.
func (r *Registry) TokensByOwner(owner crypto.Address, startAfter uint64, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 50
	}
	prefix := ownerKeyPrefix + owner.String() + "/"
	it := r.db.NewIterator([]byte(prefix))
	defer it.Release()
	var out []uint64
	for it.Next() {
		raw := strings.TrimPrefix(string(it.Key()), prefix)
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("nft: malformed owner index key %q: %w", it.Key(), err)
		}
		if id <= startAfter {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, it.Error()
}

// AllTokens lists every live token after the cursor in id order.
func (r *Registry) AllTokens(startAfter uint64, limit int) ([]Token, error) {
	if limit <= 0 {
		limit = 50
	}
	it := r.db.NewIterator([]byte(tokenKeyPrefix))
	defer it.Release()
	var out []Token
	for it.Next() {
		var token Token
		if err := json.Unmarshal(it.Value(), &token); err != nil {
			return nil, fmt.Errorf("nft: decode token %q: %w", it.Key(), err)
		}
		if token.ID <= startAfter {
			continue
		}
		out = append(out, token)
		if len(out) == limit {
			break
		}
	}
	return out, it.Error()
}

func (r *Registry) token(id uint64) (Token, error) {
	raw, err := r.db.Get(tokenKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return Token{}, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	if err != nil {
		return Token{}, err
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return Token{}, fmt.Errorf("nft: decode token %d: %w", id, err)
	}
	return token, nil
}

func (r *Registry) nextID() (uint64, error) {
	raw, err := r.db.Get([]byte(nextIDKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("nft: malformed next id %q: %w", raw, err)
	}
	return id, nil
}
