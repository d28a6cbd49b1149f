// Package casestore persists workflow case state. The runtime treats it as
// crash-consistent key-value storage keyed by case id.
package casestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a case id has no stored state.
var ErrNotFound = errors.New("case not found")

// Case is the persisted state of one workflow instance.
type Case struct {
	ID          string            `json:"id"`
	WorkflowID  string            `json:"workflow_id"`
	State       string            `json:"state"`
	Variables   map[string]string `json:"variables,omitempty"`
	UpdatedAtMS int64             `json:"updated_at_ms"`
}

// Validate enforces case required fields.
func (c Case) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("case id is required")
	}
	if strings.TrimSpace(c.WorkflowID) == "" {
		return fmt.Errorf("case workflow_id is required")
	}
	return nil
}

// Store is the case persistence seam.
type Store interface {
	Save(c Case) error
	Load(id string) (Case, error)
	Delete(id string) error
}

// Memory keeps cases in process memory.
type Memory struct {
	mu    sync.Mutex
	cases map[string]Case
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cases: map[string]Case{}}
}

// Save stores the case, replacing prior state.
func (m *Memory) Save(c Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("save case: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = cloneCase(c)
	return nil
}

// Load returns the stored case state.
func (m *Memory) Load(id string) (Case, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Case{}, fmt.Errorf("case id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return Case{}, fmt.Errorf("load case %s: %w", id, ErrNotFound)
	}
	return cloneCase(c), nil
}

// Delete removes a completed case. Deleting an absent case is a no-op.
func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cases, strings.TrimSpace(id))
	return nil
}

func cloneCase(c Case) Case {
	if c.Variables == nil {
		return c
	}
	vars := make(map[string]string, len(c.Variables))
	for k, v := range c.Variables {
		vars[k] = v
	}
	c.Variables = vars
	return c
}

const casePrefix = "case/"

// Badger is the durable case store.
type Badger struct {
	db *badger.DB
}

// NewBadger wraps an open database. The caller owns the database lifecycle.
func NewBadger(db *badger.DB) (*Badger, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is required")
	}
	return &Badger{db: db}, nil
}

// Save stores the case, replacing prior state.
func (b *Badger) Save(c Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("save case: %w", err)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode case %s: %w", c.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(casePrefix+c.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("save case %s: %w", c.ID, err)
	}
	return nil
}

// Load returns the stored case state.
func (b *Badger) Load(id string) (Case, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Case{}, fmt.Errorf("case id is required")
	}
	var c Case
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(casePrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if err == badger.ErrKeyNotFound {
		return Case{}, fmt.Errorf("load case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Case{}, fmt.Errorf("load case %s: %w", id, err)
	}
	return c, nil
}

// Delete removes a completed case. Deleting an absent case is a no-op.
func (b *Badger) Delete(id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(casePrefix + strings.TrimSpace(id)))
	})
	if err != nil {
		return fmt.Errorf("delete case %s: %w", id, err)
	}
	return nil
}
