package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-anchor/internal/hashing"
	"github.com/noah-isme/gema-anchor/internal/ledger"
	"github.com/noah-isme/gema-anchor/internal/models"
	"github.com/noah-isme/gema-anchor/internal/observability"
	"github.com/noah-isme/gema-anchor/internal/repository"
)

// Ledger submits one skill line's anchoring transaction and waits for
// finality. Resubmission creates a second on-chain event, so callers gate on
// the line's on_chain flag.
type Ledger interface {
	AnchorSkillRating(ctx context.Context, req ledger.AnchorRequest) (ledger.AnchorReceipt, error)
}

// Session outcomes within a pass.
const (
	outcomeAnchored = "anchored"
	outcomePartial  = "partial"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

// PassReport summarizes one anchoring pass.
type PassReport struct {
	PassID         string
	Sessions       int
	FullyAnchored  int
	Skipped        int
	LinesConfirmed int
	LineFailures   int
}

// AnchorService drives unanchored rating sessions to their on-chain state.
type AnchorService interface {
	// RunPass executes a single anchoring pass. A pass with zero unanchored
	// sessions is a successful no-op. Per-session and per-line failures are
	// contained and retried on a later pass; only top-level store failures
	// surface as an error.
	RunPass(ctx context.Context) (PassReport, error)
}

type anchorService struct {
	ratings    repository.RatingRepository
	identities repository.IdentityRepository
	ledger     Ledger
	events     EventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAnchorService constructs the orchestrator.
func NewAnchorService(ratings repository.RatingRepository, identities repository.IdentityRepository, lc Ledger, events EventPublisher, logger zerolog.Logger) AnchorService {
	return &anchorService{
		ratings:    ratings,
		identities: identities,
		ledger:     lc,
		events:     events,
		logger:     logger.With().Str("component", "anchor_service").Logger(),
		now:        time.Now,
	}
}

func (s *anchorService) RunPass(ctx context.Context) (PassReport, error) {
	report := PassReport{PassID: uuid.NewString()}
	started := s.now()

	tracer := otel.Tracer("github.com/noah-isme/gema-anchor/internal/service/anchor")
	ctx, span := tracer.Start(ctx, "anchor.pass")
	span.SetAttributes(attribute.String("anchor.pass_id", report.PassID))
	defer span.End()

	logger := s.logger.With().Str("pass_id", report.PassID).Logger()

	sessions, err := s.ratings.ListUnanchoredSessions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session_listing_failed")
		return report, fmt.Errorf("list unanchored sessions: %w", err)
	}

	if len(sessions) == 0 {
		logger.Info().Msg("no unanchored sessions, nothing to do")
		return report, nil
	}

	// Sessions are processed oldest-first and strictly one at a time: the
	// signing account's nonce makes serialized submission the simplest
	// correct design.
	for _, session := range sessions {
		report.Sessions++
		outcome := s.anchorSession(ctx, tracer, logger, session, &report)
		observability.AnchorSessions().WithLabelValues(outcome).Inc()

		switch outcome {
		case outcomeAnchored:
			report.FullyAnchored++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	observability.AnchorPassDuration().Observe(s.now().Sub(started).Seconds())
	span.SetAttributes(
		attribute.Int("anchor.sessions", report.Sessions),
		attribute.Int("anchor.fully_anchored", report.FullyAnchored),
		attribute.Int("anchor.line_failures", report.LineFailures),
	)

	logger.Info().
		Int("sessions", report.Sessions).
		Int("fully_anchored", report.FullyAnchored).
		Int("skipped", report.Skipped).
		Int("lines_confirmed", report.LinesConfirmed).
		Int("line_failures", report.LineFailures).
		Msg("anchoring pass finished")

	return report, nil
}

// anchorSession drives a single session as far as it can get this pass.
// Failures abandon the session, never the batch.
func (s *anchorService) anchorSession(ctx context.Context, tracer trace.Tracer, passLogger zerolog.Logger, session models.RatingSession, report *PassReport) string {
	ctx, span := tracer.Start(ctx, "anchor.session")
	span.SetAttributes(attribute.Int64("anchor.session_id", int64(session.ID)))
	defer span.End()

	logger := passLogger.With().Uint("session_id", session.ID).Logger()

	lines, err := s.ratings.ListSkillLines(ctx, session.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load skill lines, abandoning session for this pass")
		span.RecordError(err)
		span.SetStatus(codes.Error, "line_listing_failed")
		return outcomeFailed
	}

	if len(lines) == 0 {
		logger.Warn().Msg("session has no skill lines, skipping")
		span.SetStatus(codes.Error, "no_skill_lines")
		return outcomeSkipped
	}

	raterDID := s.identities.ResolveDID(ctx, session.RaterID)
	ratedDID := s.identities.ResolveDID(ctx, session.StudentID)

	// Hashes are recomputed from the stored values on every pass. The
	// computation is deterministic, so overwriting is safe and a restarted
	// pass picks up exactly where the previous one stopped.
	sessionHash := hashing.HashSession(session, lines)
	taskHash := hashing.HashIdentifier(strconv.FormatUint(uint64(session.TaskID), 10))
	subjectHash := hashing.HashIdentifier(strconv.FormatUint(uint64(session.StudentID), 10))

	if err := s.ratings.RecordSessionHashes(ctx, session.ID, sessionHash.Hex(), taskHash.Hex(), subjectHash.Hex()); err != nil {
		logger.Error().Err(err).Msg("failed to persist session hashes, abandoning session for this pass")
		span.RecordError(err)
		span.SetStatus(codes.Error, "hash_persist_failed")
		return outcomeFailed
	}

	allAnchored := true
	for _, line := range lines {
		if line.OnChain {
			// Already confirmed on a prior pass; resubmitting would create a
			// duplicate on-chain event.
			observability.AnchorLines().WithLabelValues("already_anchored").Inc()
			continue
		}

		receipt, err := s.ledger.AnchorSkillRating(ctx, ledger.AnchorRequest{
			SessionHash: sessionHash,
			TaskHash:    taskHash,
			SubjectHash: subjectHash,
			RaterDID:    raterDID,
			RatedDID:    ratedDID,
			SkillID:     line.SkillID,
			SkillName:   line.SkillName,
			Stars:       line.Stars,
		})
		if err != nil {
			logger.Error().Err(err).Uint("line_id", line.ID).Uint("skill_id", line.SkillID).Msg("failed to anchor skill line")
			span.RecordError(err)
			s.recordAttempt(ctx, logger, session.ID, line, "", err)
			observability.AnchorLines().WithLabelValues("failed").Inc()
			report.LineFailures++
			allAnchored = false
			continue
		}

		if err := s.ratings.RecordSkillAnchored(ctx, line.ID, receipt.TxHash); err != nil {
			// The transaction landed but the flag write failed. Leaving
			// on_chain false means the next pass resubmits, so this is the
			// one write worth shouting about.
			logger.Error().Err(err).Uint("line_id", line.ID).Str("tx_hash", receipt.TxHash).Msg("anchored on chain but failed to persist line state")
			span.RecordError(err)
			report.LineFailures++
			allAnchored = false
			continue
		}

		s.recordAttempt(ctx, logger, session.ID, line, receipt.TxHash, nil)
		observability.AnchorLines().WithLabelValues("confirmed").Inc()
		report.LinesConfirmed++

		logger.Info().
			Uint("line_id", line.ID).
			Uint("skill_id", line.SkillID).
			Str("tx_hash", receipt.TxHash).
			Uint32("block", receipt.BlockNumber).
			Msg("skill line anchored")
	}

	if !allAnchored {
		span.SetStatus(codes.Error, "partially_anchored")
		return outcomePartial
	}

	if err := s.ratings.RecordSessionFullyAnchored(ctx, session.ID); err != nil {
		logger.Error().Err(err).Msg("all lines anchored but failed to mark session, next pass will retry the mark")
		span.RecordError(err)
		return outcomePartial
	}

	if s.events != nil {
		s.events.SessionAnchored(SessionAnchoredEvent{
			SessionID:   session.ID,
			TaskID:      session.TaskID,
			StudentID:   session.StudentID,
			SessionHash: sessionHash.Hex(),
			RaterDID:    raterDID,
			RatedDID:    ratedDID,
			AvgStars:    session.AvgStars,
			XP:          session.XP,
			AnchoredAt:  s.now(),
		})
	}

	logger.Info().Msg("session fully anchored")
	return outcomeAnchored
}

// recordAttempt writes one row of the submission audit trail. Best-effort:
// the audit trail must never block anchoring.
func (s *anchorService) recordAttempt(ctx context.Context, logger zerolog.Logger, sessionID uint, line models.SkillRatingLine, txHash string, anchorErr error) {
	detail := map[string]interface{}{
		"skill_id":   line.SkillID,
		"skill_name": line.SkillName,
		"stars":      line.Stars,
	}

	status := models.AttemptStatusConfirmed
	if anchorErr != nil {
		status = models.AttemptStatusFailed
		detail["error"] = anchorErr.Error()
	}

	encoded, err := json.Marshal(detail)
	if err != nil {
		logger.Warn().Err(err).Uint("line_id", line.ID).Msg("failed to encode attempt detail")
		return
	}

	attempt := models.AnchorAttempt{
		SessionID: sessionID,
		LineID:    line.ID,
		Status:    status,
		TxHash:    txHash,
		Detail:    datatypes.JSON(encoded),
	}

	if err := s.ratings.CreateAttempt(ctx, &attempt); err != nil {
		logger.Warn().Err(err).Uint("line_id", line.ID).Msg("failed to persist anchor attempt")
	}
}
