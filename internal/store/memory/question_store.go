// Package memory provides in-process implementations of the storage
// interfaces, used by the devnet profile and by tests.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// QuestionStore keeps questions and bindings in maps keyed by their derived
// record locations. It is safe for concurrent use.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[common.Hash]domain.Question
	bindings  map[common.Hash]domain.OracleBinding
}

// NewQuestionStore creates an empty QuestionStore.
func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		questions: make(map[common.Hash]domain.Question),
		bindings:  make(map[common.Hash]domain.OracleBinding),
	}
}

// Create inserts both records or neither.
func (s *QuestionStore) Create(_ context.Context, q domain.Question, b domain.OracleBinding) error {
	qKey := domain.RecordKey(domain.StateAccountTag, q.InstanceID)
	bKey := domain.RecordKey(domain.OracleInfoTag, b.InstanceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[qKey]; ok {
		return fmt.Errorf("memory: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
	}
	if _, ok := s.bindings[bKey]; ok {
		return fmt.Errorf("memory: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
	}
	s.questions[qKey] = cloneQuestion(q)
	s.bindings[bKey] = cloneBinding(b)
	return nil
}

// Get returns the question of instanceID.
func (s *QuestionStore) Get(_ context.Context, instanceID string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[domain.RecordKey(domain.StateAccountTag, instanceID)]
	if !ok {
		return domain.Question{}, fmt.Errorf("memory: get question %s: %w", instanceID, domain.ErrNotFound)
	}
	return cloneQuestion(q), nil
}

// GetBinding returns the oracle binding of instanceID.
func (s *QuestionStore) GetBinding(_ context.Context, instanceID string) (domain.OracleBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[domain.RecordKey(domain.OracleInfoTag, instanceID)]
	if !ok {
		return domain.OracleBinding{}, fmt.Errorf("memory: get binding %s: %w", instanceID, domain.ErrNotFound)
	}
	return cloneBinding(b), nil
}

// Resolve commits res when the stored question still accepts it.
func (s *QuestionStore) Resolve(_ context.Context, instanceID string, res domain.Resolution) (domain.Question, error) {
	key := domain.RecordKey(domain.StateAccountTag, instanceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[key]
	if !ok {
		return domain.Question{}, fmt.Errorf("memory: resolve %s: %w", instanceID, domain.ErrNotFound)
	}
	if err := domain.CheckResolve(q, res); err != nil {
		return domain.Question{}, fmt.Errorf("memory: resolve %s: %w", instanceID, err)
	}
	q = domain.ApplyResolution(q, res)
	s.questions[key] = q
	return cloneQuestion(q), nil
}

// List returns questions newest first.
func (s *QuestionStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Question, error) {
	s.mu.RLock()
	out := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, cloneQuestion(q))
	}
	s.mu.RUnlock()

	domain.SortNewestFirst(out)
	return opts.Page(out), nil
}

func cloneQuestion(q domain.Question) domain.Question {
	if q.Resolution != nil {
		r := *q.Resolution
		r.RequestID = append(domain.RequestID(nil), r.RequestID...)
		q.Resolution = &r
	}
	return q
}

func cloneBinding(b domain.OracleBinding) domain.OracleBinding {
	b.AppInfo.AppID = cloneUint256(b.AppInfo.AppID)
	b.AppInfo.GroupPubKey.X = cloneUint256(b.AppInfo.GroupPubKey.X)
	return b
}

func cloneUint256(u domain.Uint256) domain.Uint256 {
	if u.Int == nil {
		return u
	}
	return domain.NewUint256(new(big.Int).Set(u.Int))
}

var _ domain.QuestionStore = (*QuestionStore)(nil)
