// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import "sync"

const (
	// DefaultConfigFile is the preference file holding the dynamic SDK
	// configuration
	DefaultConfigFile = "approov-service"
	// DefaultConfigKey is the key of the dynamic SDK configuration within
	// DefaultConfigFile
	DefaultConfigKey = "approov-service"
)

// ConfigStore is the host supplied key/value store persisting the dynamic
// configuration of the Attestation Service. Values are opaque.
type ConfigStore interface {
	// Load returns nil (and no error) if nothing is stored under file/key.
	Load(file, key string) ([]byte, error)
	Save(file, key string, value []byte) error
}

// MemoryStore is a ConfigStore that lives for the process lifetime only.
type MemoryStore struct {
	mu     sync.Mutex
	values map[[2]string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[[2]string][]byte{}}
}

func (o *MemoryStore) Load(file, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	value, ok := o.values[[2]string{file, key}]
	if !ok {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

func (o *MemoryStore) Save(file, key string, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.values[[2]string{file, key}] = append([]byte{}, value...)

	return nil
}
