package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/oracle"
	"github.com/muon-protocol/factgpt-examples/internal/resolution"
)

// ErrAttestorDisabled is returned by Attest when no development attestor is
// configured.
var ErrAttestorDisabled = errors.New("question_service: attestor disabled")

// QuestionService fronts the resolution protocol with a read cache. The cache
// is optional and never consulted on the commit path.
type QuestionService struct {
	protocol *resolution.Protocol
	cache    domain.QuestionCache
	attestor *oracle.Attestor
	logger   *slog.Logger
}

// NewQuestionService creates a QuestionService. cache and attestor may be
// nil.
func NewQuestionService(
	protocol *resolution.Protocol,
	cache domain.QuestionCache,
	attestor *oracle.Attestor,
	logger *slog.Logger,
) *QuestionService {
	return &QuestionService{
		protocol: protocol,
		cache:    cache,
		attestor: attestor,
		logger:   logger,
	}
}

// Initialize creates a new question and its oracle binding.
func (s *QuestionService) Initialize(ctx context.Context, params resolution.InitializeParams) (domain.Question, domain.OracleBinding, error) {
	q, b, err := s.protocol.Initialize(ctx, params)
	if err != nil {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("question_service: initialize: %w", err)
	}
	return q, b, nil
}

// CommitOutcome commits a signed outcome and refreshes the cached copy. An
// oracle rejection is returned unwrapped.
func (s *QuestionService) CommitOutcome(ctx context.Context, instanceID string, outcome bool, reqID domain.RequestID, sig domain.SchnorrSign) (domain.Question, error) {
	q, err := s.protocol.CommitOutcome(ctx, instanceID, outcome, reqID, sig)
	if err != nil {
		if resolution.IsRejection(err) {
			return domain.Question{}, err
		}
		return domain.Question{}, fmt.Errorf("question_service: commit: %w", err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, instanceID); cacheErr != nil {
			s.logger.WarnContext(ctx, "question_service: cache invalidate failed",
				slog.String("instance_id", instanceID),
				slog.String("error", cacheErr.Error()),
			)
		} else {
			s.backfill(ctx, q)
		}
	}
	return q, nil
}

// GetQuestion returns a question, checking the cache first and falling back
// to the store on a miss.
func (s *QuestionService) GetQuestion(ctx context.Context, instanceID string) (domain.Question, error) {
	if s.cache != nil {
		if q, err := s.cache.Get(ctx, instanceID); err == nil {
			return q, nil
		}
	}

	q, err := s.protocol.Question(ctx, instanceID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question_service: get %q: %w", instanceID, err)
	}
	s.backfill(ctx, q)
	return q, nil
}

func (s *QuestionService) backfill(ctx context.Context, q domain.Question) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "question_service: cache set failed",
			slog.String("instance_id", q.InstanceID),
			slog.String("error", err.Error()),
		)
	}
}

// GetBinding returns the oracle binding of a question.
func (s *QuestionService) GetBinding(ctx context.Context, instanceID string) (domain.OracleBinding, error) {
	b, err := s.protocol.Binding(ctx, instanceID)
	if err != nil {
		return domain.OracleBinding{}, fmt.Errorf("question_service: get binding %q: %w", instanceID, err)
	}
	return b, nil
}

// ListQuestions returns questions from the store, newest first.
func (s *QuestionService) ListQuestions(ctx context.Context, opts domain.ListOpts) ([]domain.Question, error) {
	qs, err := s.protocol.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("question_service: list: %w", err)
	}
	return qs, nil
}

// MessageHash returns the hash the oracle group must sign.
func (s *QuestionService) MessageHash(ctx context.Context, instanceID string, reqID domain.RequestID, outcome bool) (*big.Int, error) {
	h, err := s.protocol.MessageHash(ctx, instanceID, reqID, outcome)
	if err != nil {
		return nil, fmt.Errorf("question_service: message hash: %w", err)
	}
	return h, nil
}

// Attest signs outcome for a bound question with the development attestor.
// The signature only verifies when the question was bound to the attestor's
// group key.
func (s *QuestionService) Attest(ctx context.Context, instanceID string, reqID domain.RequestID, outcome bool) (oracle.Attestation, error) {
	if s.attestor == nil {
		return oracle.Attestation{}, ErrAttestorDisabled
	}
	b, err := s.protocol.Binding(ctx, instanceID)
	if err != nil {
		return oracle.Attestation{}, fmt.Errorf("question_service: attest %q: %w", instanceID, err)
	}

	a, err := s.attestor.Attest(b.AppInfo.AppID.Int, reqID, outcome)
	if err != nil {
		return oracle.Attestation{}, fmt.Errorf("question_service: attest %q: %w", instanceID, err)
	}
	s.logger.InfoContext(ctx, "question_service: attestation issued",
		slog.String("instance_id", instanceID),
		slog.String("request_id", a.RequestID.String()),
		slog.Bool("outcome", outcome),
	)
	return a, nil
}

// AttestorKey returns the development attestor's group key, if any.
func (s *QuestionService) AttestorKey() (domain.GroupPubKey, bool) {
	if s.attestor == nil {
		return domain.GroupPubKey{}, false
	}
	return s.attestor.GroupPubKey(), true
}

// Now returns the protocol clock, used to derive question states.
func (s *QuestionService) Now() time.Time {
	return s.protocol.Now()
}
