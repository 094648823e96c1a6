package testutil

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

type pairKey struct {
	item uuid.UUID
	user uuid.UUID
}

// MemoryStore is an in-memory TxRunner with fault injection.
// Transactions are serialized and run against copies that are only kept on success.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]models.VotableItem
	records map[pairKey]models.VoteRecord

	txFaults     []error
	insertFaults []error
	txCalls      int
}

var _ votes.TxRunner = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[uuid.UUID]models.VotableItem),
		records: make(map[pairKey]models.VoteRecord),
	}
}

// AddItem registers an item with score = baseline.
func (s *MemoryStore) AddItem(kind models.ItemKind, baseline int64) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.items[id] = models.VotableItem{ID: id, Kind: kind, Score: baseline, Baseline: baseline}
	return id
}

// ForceScore overwrites a counter outside the engine to simulate drift.
func (s *MemoryStore) ForceScore(id uuid.UUID, score int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[id]
	item.Score = score
	s.items[id] = item
}

// InjectTxFaults queues errors returned by the next InTx calls before fn runs.
func (s *MemoryStore) InjectTxFaults(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txFaults = append(s.txFaults, errs...)
}

// InjectInsertFaults queues errors returned by the next Ledger.Insert calls, after earlier writes in the same transaction.
func (s *MemoryStore) InjectInsertFaults(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertFaults = append(s.insertFaults, errs...)
}

func (s *MemoryStore) TxCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCalls
}

func (s *MemoryStore) Score(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].Score
}

// Records returns the ledger for one item ordered by user id.
func (s *MemoryStore) Records(itemID uuid.UUID) []models.VoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VoteRecord
	for k, rec := range s.records {
		if k.item == itemID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx votes.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	if len(s.txFaults) > 0 {
		err := s.txFaults[0]
		s.txFaults = s.txFaults[1:]
		return err
	}

	tx := &memTx{store: s, items: maps.Clone(s.items), records: maps.Clone(s.records)}
	if err := fn(tx); err != nil {
		return err
	}
	s.items, s.records = tx.items, tx.records
	return nil
}

// Ledger returns a non-transactional view for readers.
func (s *MemoryStore) Ledger() votes.Ledger {
	return lockedLedger{s: s}
}

type lockedLedger struct {
	s *MemoryStore
}

func (l lockedLedger) view() *memTx {
	return &memTx{store: l.s, items: l.s.items, records: l.s.records}
}

func (l lockedLedger) Find(ctx context.Context, itemID, userID uuid.UUID) (*models.VoteRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.view().Find(ctx, itemID, userID)
}

func (l lockedLedger) Insert(context.Context, *models.VoteRecord) error {
	return fmt.Errorf("read-only ledger")
}

func (l lockedLedger) Remove(context.Context, *models.VoteRecord) error {
	return fmt.Errorf("read-only ledger")
}

func (l lockedLedger) Directions(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.Direction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.view().Directions(ctx, userID, itemIDs)
}

func (l lockedLedger) Sum(ctx context.Context, itemID uuid.UUID) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.view().Sum(ctx, itemID)
}

// memTx implements both stores over the working copies of one transaction.
type memTx struct {
	store   *MemoryStore
	items   map[uuid.UUID]models.VotableItem
	records map[pairKey]models.VoteRecord
}

func (t *memTx) Ledger() votes.Ledger   { return t }
func (t *memTx) Counter() votes.Counter { return t }

func (t *memTx) Find(_ context.Context, itemID, userID uuid.UUID) (*models.VoteRecord, error) {
	rec, ok := t.records[pairKey{itemID, userID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *memTx) Insert(_ context.Context, rec *models.VoteRecord) error {
	if len(t.store.insertFaults) > 0 {
		err := t.store.insertFaults[0]
		t.store.insertFaults = t.store.insertFaults[1:]
		return err
	}
	k := pairKey{rec.ItemID, rec.UserID}
	if _, exists := t.records[k]; exists {
		return fmt.Errorf("%w: duplicate vote record", votes.ErrConflict)
	}
	t.records[k] = *rec
	return nil
}

func (t *memTx) Remove(_ context.Context, rec *models.VoteRecord) error {
	k := pairKey{rec.ItemID, rec.UserID}
	cur, ok := t.records[k]
	if !ok || cur.ID != rec.ID {
		return fmt.Errorf("%w: vote record already removed", votes.ErrConflict)
	}
	delete(t.records, k)
	return nil
}

func (t *memTx) Directions(_ context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.Direction, error) {
	out := make(map[uuid.UUID]models.Direction)
	for _, id := range itemIDs {
		if rec, ok := t.records[pairKey{id, userID}]; ok {
			out[id] = rec.Direction
		}
	}
	return out, nil
}

func (t *memTx) Sum(_ context.Context, itemID uuid.UUID) (int64, error) {
	var sum int64
	for k, rec := range t.records {
		if k.item == itemID {
			sum += rec.Direction.Weight()
		}
	}
	return sum, nil
}

func (t *memTx) Get(_ context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	item, ok := t.items[itemID]
	if !ok {
		return nil, votes.ErrItemNotFound
	}
	return &item, nil
}

// GetForUpdate needs no lock: InTx already runs one transaction at a time.
func (t *memTx) GetForUpdate(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	return t.Get(ctx, itemID)
}

func (t *memTx) Score(ctx context.Context, itemID uuid.UUID) (int64, error) {
	item, err := t.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.Score, nil
}

func (t *memTx) ApplyDelta(_ context.Context, itemID uuid.UUID, delta int64) (int64, error) {
	item, ok := t.items[itemID]
	if !ok {
		return 0, votes.ErrItemNotFound
	}
	item.Score += delta
	t.items[itemID] = item
	return item.Score, nil
}

func (t *memTx) SetScore(_ context.Context, itemID uuid.UUID, score int64) error {
	item, ok := t.items[itemID]
	if !ok {
		return votes.ErrItemNotFound
	}
	item.Score = score
	t.items[itemID] = item
	return nil
}

// Create registers item with score = baseline, like the database item store.
func (s *MemoryStore) Create(_ context.Context, item *models.VotableItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("%w: %s", votes.ErrItemExists, item.ID)
	}
	item.Score = item.Baseline
	s.items[item.ID] = *item
	return nil
}

func (s *MemoryStore) Get(_ context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, votes.ErrItemNotFound
	}
	return &item, nil
}
