package recurring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
)

// fakeStore keeps transactions in memory and mimics the all-or-nothing
// marking of the real storage.
type fakeStore struct {
	candidateErr   error
	markErr        error
	txns           map[string]*model.Transaction
	onCandidates   func()
	mu             sync.Mutex
	candidateCalls int
	markCalls      int
}

func newFakeStore(txns ...model.Transaction) *fakeStore {
	s := &fakeStore{txns: make(map[string]*model.Transaction)}
	for i := range txns {
		txn := txns[i]
		s.txns[txn.ID] = &txn
	}
	return s
}

func (s *fakeStore) GetCandidateTransactions(_ context.Context, cutoff time.Time) ([]model.Transaction, error) {
	s.mu.Lock()
	s.candidateCalls++
	hook := s.onCandidates
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidateErr != nil {
		return nil, s.candidateErr
	}

	var result []model.Transaction
	for _, txn := range s.txns {
		if txn.IsRecurring || txn.Date.Before(cutoff) {
			continue
		}
		result = append(result, *txn)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (s *fakeStore) MarkRecurring(_ context.Context, ids []string, frequency model.Frequency, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markCalls++
	if s.markErr != nil {
		return 0, s.markErr
	}

	var missing []string
	for _, id := range ids {
		if _, ok := s.txns[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return 0, &common.MissingTransactionsError{IDs: missing}
	}

	for _, id := range ids {
		txn := s.txns[id]
		txn.IsRecurring = true
		txn.RecurringPattern = string(frequency)
		txn.RecurringGroupID = groupID
	}
	return len(ids), nil
}

func (s *fakeStore) GetRecurringGroups(_ context.Context) ([]model.RecurringGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make(map[string]*model.RecurringGroup)
	for _, txn := range s.txns {
		if !txn.IsRecurring || txn.RecurringGroupID == "" {
			continue
		}
		group, ok := groups[txn.RecurringGroupID]
		if !ok {
			group = &model.RecurringGroup{GroupID: txn.RecurringGroupID}
			groups[txn.RecurringGroupID] = group
		}
		group.Count++
		if group.Count == 1 || txn.Date.After(group.Last.Date) {
			group.Last = *txn
			group.Pattern = txn.RecurringPattern
		}
	}

	result := make([]model.RecurringGroup, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	return result, nil
}

func (s *fakeStore) get(id string) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.txns[id]
}

// fixedNow pins the detector clock.
func fixedNow(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 10, 30, 0, 0, time.UTC)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func txn(id string, when time.Time, amount, description string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        when,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		AccountID:   "acc1",
	}
}

// netflixSeries is six monthly charges on the 15th, January to June 2025.
func netflixSeries() []model.Transaction {
	txns := make([]model.Transaction, 0, 6)
	for month := time.January; month <= time.June; month++ {
		txns = append(txns, txn(fmt.Sprintf("nf-%d", month), date(2025, month, 15), "-39.90", "NETFLIX ASSINATURA"))
	}
	return txns
}

// newTestDetector builds a detector with sequential ids and a fixed clock.
func newTestDetector(t *testing.T, store Store, mutate func(*Options)) *Detector {
	t.Helper()

	opts := DefaultOptions()
	opts.Now = fixedNow(2025, time.July, 1)
	if mutate != nil {
		mutate(&opts)
	}

	d, err := NewDetector(store, opts)
	require.NoError(t, err)

	var mu sync.Mutex
	next := 0
	d.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}
	return d
}
