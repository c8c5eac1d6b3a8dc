package redeem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/capability"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/ledger"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/metrics"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/notify"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/shortcode"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/valentine"
	"github.com/rodweleo/guess-my-valentine/cmd/security/fingerprint"
)

// Details is the receiver-facing payload.
type Details struct {
	Status     valentine.Status
	Message    string
	Activities []string
}

// GuessResult reports the outcome of one guess.
type GuessResult struct {
	ValentineID       string
	Status            valentine.Status
	Correct           bool
	RemainingAttempts int
}

// redemption is a short code that passed every check at one instant.
type redemption struct {
	code   shortcode.Record
	claims capability.Claims
	record valentine.Record
}

// redeemable resolves code to a PENDING record. Any failed check is ErrInvalidOrExpired;
// only infrastructure failures surface as other errors.
func (s *Service) redeemable(ctx context.Context, op, code string, now time.Time) (redemption, error) {
	code = strings.TrimSpace(code)
	if !shortcode.ValidCode(code) {
		return redemption{}, invalidLink(op)
	}

	entry, err := s.codes.Resolve(ctx, code, now)
	if err != nil {
		if errors.Is(err, shortcode.ErrNotFound) {
			return redemption{}, invalidLink(op)
		}
		return redemption{}, fmt.Errorf("%s: resolve: %w", op, err)
	}

	if _, err := s.ledger.Lookup(ctx, entry.TokenID, now); err != nil {
		if errors.Is(err, ledger.ErrNotUsable) {
			return redemption{}, invalidLink(op)
		}
		return redemption{}, fmt.Errorf("%s: ledger: %w", op, err)
	}

	claims, err := s.signer.Verify(entry.Capability, now)
	if err != nil {
		return redemption{}, invalidLink(op)
	}
	if claims.ValentineID != entry.ValentineID || claims.TokenID != entry.TokenID {
		return redemption{}, invalidLink(op)
	}

	rec, err := s.valentines.Get(ctx, claims.ValentineID)
	if err != nil {
		if errors.Is(err, valentine.ErrNotFound) {
			return redemption{}, invalidLink(op)
		}
		return redemption{}, fmt.Errorf("%s: get: %w", op, err)
	}
	if !rec.Redeemable(now) {
		return redemption{}, invalidLink(op)
	}

	return redemption{code: entry, claims: claims, record: rec}, nil
}

// ResolveDetails returns the message and activities behind a live link.
func (s *Service) ResolveDetails(ctx context.Context, code string) (Details, error) {
	r, err := s.redeemable(ctx, "redeem.ResolveDetails", code, s.now().UTC())
	if err != nil {
		return Details{}, err
	}
	return Details{
		Status:     r.record.Status,
		Message:    r.record.Message,
		Activities: append([]string(nil), r.record.Activities...),
	}, nil
}

// ValidateLink reports whether code currently authorizes redemption.
func (s *Service) ValidateLink(ctx context.Context, code string) (bool, error) {
	_, err := s.redeemable(ctx, "redeem.ValidateLink", code, s.now().UTC())
	switch {
	case err == nil:
		s.metrics.LinkValidation(metrics.ResultOK)
		return true, nil
	case errors.Is(err, ErrInvalidOrExpired):
		s.metrics.LinkValidation(metrics.ResultInvalid)
		return false, nil
	default:
		s.metrics.LinkValidation(metrics.ResultError)
		return false, err
	}
}

// Guess compares guessedPhone with the sender. A wrong guess consumes one attempt
// and the attempt that reaches the budget expires the valentine.
func (s *Service) Guess(ctx context.Context, code, guessedPhone string) (GuessResult, error) {
	const op = "redeem.Guess"
	now := s.now().UTC()

	if strings.TrimSpace(guessedPhone) == "" {
		return GuessResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "guessed_phone"}
	}

	r, err := s.redeemable(ctx, op, code, now)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			s.metrics.Guess(metrics.ResultInvalid)
		}
		return GuessResult{}, err
	}

	guessed, err := s.phones.Normalize(guessedPhone)
	if err != nil {
		return GuessResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "guessed_phone"}
	}

	if fingerprint.Equal(s.hasher.Fingerprint(guessed), r.record.SenderFingerprint) {
		s.metrics.Guess(metrics.ResultCorrect)
		s.log.InfoContext(ctx, "redeem.guess.correct", "valentine_id", r.record.ID)
		return GuessResult{
			ValentineID:       r.record.ID,
			Status:            r.record.Status,
			Correct:           true,
			RemainingAttempts: r.record.RemainingAttempts(),
		}, nil
	}

	updated, err := s.valentines.RecordFailedGuess(ctx, r.record.ID, now)
	if err != nil {
		if errors.Is(err, valentine.ErrNotPending) || errors.Is(err, valentine.ErrNotFound) {
			s.metrics.Guess(metrics.ResultInvalid)
			return GuessResult{}, invalidLink(op)
		}
		return GuessResult{}, fmt.Errorf("%s: record: %w", op, err)
	}

	result := metrics.ResultIncorrect
	if updated.Status == valentine.StatusExpired {
		result = metrics.ResultExhausted
	}
	s.metrics.Guess(result)
	s.events.PublishStatus(ctx, statusOf(updated))
	s.log.InfoContext(ctx, "redeem.guess.incorrect",
		"valentine_id", updated.ID,
		"attempts", updated.GuessAttempts,
		"status", string(updated.Status),
	)
	return GuessResult{
		ValentineID:       updated.ID,
		Status:            updated.Status,
		RemainingAttempts: updated.RemainingAttempts(),
	}, nil
}

// Respond closes the valentine with YES or NO. The token is consumed first so
// concurrent responds race on one conditional update and exactly one wins.
func (s *Service) Respond(ctx context.Context, code, response string, activities []string) error {
	const op = "redeem.Respond"
	now := s.now().UTC()

	resp, ok := valentine.ParseResponse(response)
	if !ok {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "response"}
	}
	chosen := trimAll(activities)
	if resp == valentine.ResponseNo {
		chosen = nil
	}
	if err := valentine.ValidateActivities(chosen); err != nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "activities"}
	}

	r, err := s.redeemable(ctx, op, code, now)
	if err != nil {
		return err
	}

	if _, err := s.ledger.MarkUsed(ctx, r.code.TokenID, now); err != nil {
		if errors.Is(err, ledger.ErrNotUsable) {
			return invalidLink(op)
		}
		return fmt.Errorf("%s: ledger: %w", op, err)
	}

	updated, err := s.valentines.Resolve(ctx, r.record.ID, resp, chosen, now)
	if err != nil {
		if errors.Is(err, valentine.ErrNotPending) || errors.Is(err, valentine.ErrNotFound) {
			return invalidLink(op)
		}
		return fmt.Errorf("%s: resolve: %w", op, err)
	}

	if err := s.codes.MarkUsed(ctx, r.code.Code, now); err != nil {
		s.log.WarnContext(ctx, "redeem.respond.shortcode_retire_failed", "valentine_id", updated.ID, "err", err)
	}

	accepted := resp == valentine.ResponseYes
	s.notify(ctx, updated.ID, notify.TypeResponse, updated.SenderPhone, notify.ResponseBody(accepted, updated.ResponseActivities))
	s.metrics.Response(string(resp))
	s.events.PublishStatus(ctx, statusOf(updated))
	s.log.InfoContext(ctx, "redeem.respond.ok", "valentine_id", updated.ID, "status", string(updated.Status))
	return nil
}
