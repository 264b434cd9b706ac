package params

import (
	"errors"

	"creditcore/storage"
)

// KVState adapts a storage.Database to the StoreState interface so the
// registry can run over the committed database or a transaction overlay.
type KVState struct {
	db storage.Database
}

func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func (k *KVState) ParamStoreSet(name string, value []byte) error {
	return k.db.Put([]byte(name), value)
}

func (k *KVState) ParamStoreGet(name string) ([]byte, bool, error) {
	value, err := k.db.Get([]byte(name))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (k *KVState) ParamStoreDelete(name string) error {
	return k.db.Delete([]byte(name))
}

func (k *KVState) ParamStoreIterate(prefix string, fn func(name string, value []byte) bool) error {
	it := k.db.NewIterator([]byte(prefix))
	defer it.Release()
	for it.Next() {
		if !fn(string(it.Key()), it.Value()) {
			break
		}
	}
	return it.Error()
}
