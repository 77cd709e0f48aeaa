package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/resolution"
)

// QuestionService defines the methods the question handler requires from the
// service layer.
type QuestionService interface {
	Initialize(ctx context.Context, params resolution.InitializeParams) (domain.Question, domain.OracleBinding, error)
	CommitOutcome(ctx context.Context, instanceID string, outcome bool, reqID domain.RequestID, sig domain.SchnorrSign) (domain.Question, error)
	GetQuestion(ctx context.Context, instanceID string) (domain.Question, error)
	GetBinding(ctx context.Context, instanceID string) (domain.OracleBinding, error)
	ListQuestions(ctx context.Context, opts domain.ListOpts) ([]domain.Question, error)
	MessageHash(ctx context.Context, instanceID string, reqID domain.RequestID, outcome bool) (*big.Int, error)
	Now() time.Time
}

// QuestionHandler serves the question registry and resolution endpoints.
type QuestionHandler struct {
	questions QuestionService
	logger    *slog.Logger
}

// NewQuestionHandler creates a QuestionHandler.
func NewQuestionHandler(questions QuestionService, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		logger:    logHandler(logger, "question"),
	}
}

// questionView adds the state derived at read time.
type questionView struct {
	domain.Question
	State domain.QuestionState `json:"state"`
}

func (h *QuestionHandler) view(q domain.Question) questionView {
	return questionView{Question: q, State: q.State(h.questions.Now())}
}

type initializeRequest struct {
	InstanceID    string             `json:"instance_id"`
	Owner         domain.Identity    `json:"owner"`
	Prompt        string             `json:"prompt"`
	Deadline      uint64             `json:"deadline"`
	AppID         domain.Uint256     `json:"app_id"`
	GroupPubKey   domain.GroupPubKey `json:"group_pub_key"`
	OracleProgram domain.Identity    `json:"oracle_program"`
}

type initializeResponse struct {
	Question questionView        `json:"question"`
	Binding  domain.OracleBinding `json:"binding"`
}

// Initialize creates a question and its oracle binding. An omitted
// instance_id is generated.
// POST /api/questions
func (h *QuestionHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}

	q, b, err := h.questions.Initialize(r.Context(), resolution.InitializeParams{
		InstanceID: req.InstanceID,
		Owner:      req.Owner,
		Prompt:     req.Prompt,
		Deadline:   req.Deadline,
		AppInfo: domain.OracleAppInfo{
			GroupPubKey: req.GroupPubKey,
			AppID:       req.AppID,
		},
		OracleProgram: req.OracleProgram,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to initialize question", err)
		return
	}

	writeJSON(w, http.StatusCreated, initializeResponse{Question: h.view(q), Binding: b})
}

type listQuestionsResponse struct {
	Questions []questionView `json:"questions"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}

// ListQuestions returns initialized questions with pagination.
// GET /api/questions?limit=50&offset=0
func (h *QuestionHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	qs, err := h.questions.ListQuestions(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to list questions", err)
		return
	}

	views := make([]questionView, 0, len(qs))
	for _, q := range qs {
		views = append(views, h.view(q))
	}
	writeJSON(w, http.StatusOK, listQuestionsResponse{
		Questions: views,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetQuestion returns a single question.
// GET /api/questions/{id}
func (h *QuestionHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questions.GetQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to get question", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(q))
}

// GetBinding returns the oracle binding of a question.
// GET /api/questions/{id}/binding
func (h *QuestionHandler) GetBinding(w http.ResponseWriter, r *http.Request) {
	b, err := h.questions.GetBinding(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to get binding", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type messageResponse struct {
	InstanceID     string           `json:"instance_id"`
	RequestID      domain.RequestID `json:"request_id"`
	Outcome        bool             `json:"outcome"`
	MessageHash    domain.Uint256   `json:"message_hash"`
	MessageHashHex string           `json:"message_hash_hex"`
}

// GetMessage returns the message hash the oracle group must sign to resolve
// the question with the given outcome under request_id.
// GET /api/questions/{id}/message?outcome=true&request_id=0x...
func (h *QuestionHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	outcome, err := strconv.ParseBool(r.URL.Query().Get("outcome"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome must be true or false")
		return
	}
	var reqID domain.RequestID
	if raw := r.URL.Query().Get("request_id"); raw != "" {
		if reqID, err = domain.ParseRequestID(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	hash, err := h.questions.MessageHash(r.Context(), id, reqID, outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to compute message hash", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		InstanceID:     id,
		RequestID:      reqID,
		Outcome:        outcome,
		MessageHash:    domain.NewUint256(hash),
		MessageHashHex: fmt.Sprintf("0x%064x", hash),
	})
}

type commitRequest struct {
	Outcome   *bool              `json:"outcome"`
	RequestID domain.RequestID   `json:"request_id"`
	Signature domain.SchnorrSign `json:"signature"`
}

// CommitOutcome submits an oracle-signed outcome.
// POST /api/questions/{id}/outcome
func (h *QuestionHandler) CommitOutcome(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req commitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}
	if req.Signature.Signature.Int == nil {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	q, err := h.questions.CommitOutcome(r.Context(), id, *req.Outcome, req.RequestID, req.Signature)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to commit outcome", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: outcome committed",
		slog.String("instance_id", id),
		slog.Bool("outcome", *req.Outcome),
	)
	writeJSON(w, http.StatusOK, h.view(q))
}
