package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/batchtrack/internal/cache"
	"github.com/kiranshivaraju/batchtrack/internal/store"
	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

// --- in-memory store ---

// memStore runs each transaction against a copy of its state and swaps the
// copy in on success, so a failing transaction leaves nothing behind. The
// mutex is held for the whole transaction, which stands in for row locks.
type memStore struct {
	mu    sync.Mutex
	state *memState

	stockCalls    int
	failStockCall int // 1-based stock adjustment call to fail; 0 disables
	sequenceErr   error
	insertErr     error // returned once by InsertBatch
}

type memState struct {
	seq         map[string]int64
	batches     map[int64]*models.Batch
	ingredients map[uuid.UUID]models.Ingredient
	mixes       map[uuid.UUID]models.IngredientMix
	products    map[uuid.UUID]models.Product
	movements   []models.StockMovement
}

var errInjected = errors.New("injected storage failure")

func newMemStore() *memStore {
	return &memStore{state: &memState{
		seq:         map[string]int64{},
		batches:     map[int64]*models.Batch{},
		ingredients: map[uuid.UUID]models.Ingredient{},
		mixes:       map[uuid.UUID]models.IngredientMix{},
		products:    map[uuid.UUID]models.Product{},
	}}
}

func cloneBatch(b *models.Batch) *models.Batch {
	raw, err := json.Marshal(b)
	if err != nil {
		panic(err)
	}
	var out models.Batch
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	out.Normalize()
	return &out
}

func (st *memState) clone() *memState {
	c := &memState{
		seq:         make(map[string]int64, len(st.seq)),
		batches:     make(map[int64]*models.Batch, len(st.batches)),
		ingredients: make(map[uuid.UUID]models.Ingredient, len(st.ingredients)),
		mixes:       make(map[uuid.UUID]models.IngredientMix, len(st.mixes)),
		products:    make(map[uuid.UUID]models.Product, len(st.products)),
		movements:   append([]models.StockMovement(nil), st.movements...),
	}
	for k, v := range st.seq {
		c.seq[k] = v
	}
	for k, v := range st.batches {
		c.batches[k] = cloneBatch(v)
	}
	for k, v := range st.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range st.mixes {
		c.mixes[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	return c
}

func (m *memStore) Ping(_ context.Context) error { return nil }

func (m *memStore) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{store: m, st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) GetBatch(_ context.Context, id int64) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBatch(b), nil
}

func (m *memStore) ListBatches(_ context.Context, limit, offset int) ([]*models.Batch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*models.Batch{}
	for _, b := range m.state.batches {
		all = append(all, cloneBatch(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *memStore) ListStockMovements(_ context.Context, batchID int64) ([]*models.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.StockMovement{}
	for i := range m.state.movements {
		if m.state.movements[i].BatchID == batchID {
			mv := m.state.movements[i]
			out = append(out, &mv)
		}
	}
	return out, nil
}

func (m *memStore) CreateIngredient(_ context.Context, ing *models.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ingredients[ing.ID] = *ing
	return nil
}

func (m *memStore) GetIngredient(_ context.Context, id uuid.UUID) (*models.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ing, ok := m.state.ingredients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ing, nil
}

func (m *memStore) CreateIngredientMix(_ context.Context, mix *models.IngredientMix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.mixes[mix.ID] = *mix
	return nil
}

func (m *memStore) GetIngredientMix(_ context.Context, id uuid.UUID) (*models.IngredientMix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mix, ok := m.state.mixes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &mix, nil
}

func (m *memStore) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = *p
	return nil
}

func (m *memStore) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// --- transaction ---

type memTx struct {
	store *memStore
	st    *memState
}

func (t *memTx) NextSequence(_ context.Context, name string) (int64, error) {
	if t.store.sequenceErr != nil {
		return 0, t.store.sequenceErr
	}
	t.st.seq[name]++
	return t.st.seq[name], nil
}

func (t *memTx) InsertBatch(_ context.Context, b *models.Batch) error {
	if err := t.store.insertErr; err != nil {
		t.store.insertErr = nil
		return err
	}
	if _, exists := t.st.batches[b.ID]; exists {
		return store.ErrDuplicateKey
	}
	t.st.batches[b.ID] = cloneBatch(b)
	return nil
}

func (t *memTx) LockBatch(_ context.Context, id int64) (*models.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBatch(b), nil
}

func (t *memTx) UpdateBatch(_ context.Context, b *models.Batch, expectedVersion int64) error {
	cur, ok := t.st.batches[b.ID]
	if !ok || cur.Version != expectedVersion {
		return store.ErrConflict
	}
	t.st.batches[b.ID] = cloneBatch(b)
	return nil
}

func (t *memTx) DeleteBatch(_ context.Context, id int64) (*models.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(t.st.batches, id)
	return b, nil
}

func (t *memTx) stockCall() error {
	t.store.stockCalls++
	if t.store.failStockCall != 0 && t.store.stockCalls == t.store.failStockCall {
		return errInjected
	}
	return nil
}

func (t *memTx) DecrementIngredientStock(_ context.Context, id uuid.UUID, amount float64) (float64, error) {
	if err := t.stockCall(); err != nil {
		return 0, err
	}
	ing, ok := t.st.ingredients[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	ing.Stock -= amount
	t.st.ingredients[id] = ing
	return ing.Stock, nil
}

func (t *memTx) DecrementIngredientMixStock(_ context.Context, id uuid.UUID, amount float64) (float64, error) {
	if err := t.stockCall(); err != nil {
		return 0, err
	}
	mix, ok := t.st.mixes[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	mix.Stock -= amount
	t.st.mixes[id] = mix
	return mix.Stock, nil
}

func (t *memTx) FindProductByDefaultIngredient(_ context.Context, refID uuid.UUID) (*models.Product, error) {
	for _, p := range t.st.products {
		if p.DefaultIngredientID == refID {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) IncrementProductStock(_ context.Context, id uuid.UUID, amount float64) (float64, error) {
	if err := t.stockCall(); err != nil {
		return 0, err
	}
	p, ok := t.st.products[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	p.Stock += amount
	t.st.products[id] = p
	return p.Stock, nil
}

func (t *memTx) RecordStockMovement(_ context.Context, mv *models.StockMovement) error {
	t.st.movements = append(t.st.movements, *mv)
	return nil
}

// --- in-memory cache ---

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false, nil
	}
	c.entries[key] = value
	return true, nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var (
	_ store.Store = (*memStore)(nil)
	_ store.Tx    = (*memTx)(nil)
	_ cache.Cache = (*memCache)(nil)
)
