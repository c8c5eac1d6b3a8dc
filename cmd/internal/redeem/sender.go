package redeem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/capability"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/ids"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/metrics"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/notify"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/shortcode"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/valentine"
	"github.com/rodweleo/guess-my-valentine/cmd/security/otp"
)

// CreateInput is the sender's request.
type CreateInput struct {
	SenderPhone   string
	ReceiverPhone string
	Message       string
	Activities    []string
}

// Create stores a PENDING valentine and sends the sender an OTP.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	const op = "redeem.Create"
	now := s.now().UTC()

	sender, err := s.phones.Normalize(in.SenderPhone)
	if err != nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "sender_phone"}
	}
	receiver, err := s.phones.Normalize(in.ReceiverPhone)
	if err != nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "receiver_phone"}
	}

	activities := trimAll(in.Activities)
	message := strings.TrimSpace(in.Message)
	if err := valentine.ValidatePayload(message, activities); err != nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "payload"}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return "", fmt.Errorf("%s: id: %w", op, err)
	}
	code, err := s.otp.Issue(now)
	if err != nil {
		return "", fmt.Errorf("%s: otp: %w", op, err)
	}

	rec, err := s.valentines.Create(ctx, valentine.CreateRecord{
		ID:                  id,
		SenderFingerprint:   s.hasher.Fingerprint(sender),
		ReceiverFingerprint: s.hasher.Fingerprint(receiver),
		SenderPhone:         sender,
		ReceiverPhone:       receiver,
		Message:             message,
		Activities:          activities,
		MaxAttempts:         s.cfg.MaxAttempts,
		OTPCode:             code.Value,
		OTPExpiresAt:        code.ExpiresAt,
		LinkExpiresAt:       now.Add(s.cfg.LinkTTL),
		Now:                 now,
	})
	if err != nil {
		if errors.Is(err, valentine.ErrInvalidInput) {
			return "", OpError{Op: op, Kind: ErrInvalidInput}
		}
		return "", fmt.Errorf("%s: store: %w", op, err)
	}

	s.notify(ctx, rec.ID, notify.TypeOTP, sender, notify.OTPBody(code.Value))
	s.metrics.ValentineCreated()
	s.log.InfoContext(ctx, "redeem.create.ok", "valentine_id", rec.ID, "activities", len(activities))
	return rec.ID, nil
}

// VerifyOTP proves sender phone ownership and sends the receiver a short link.
// Every mismatch, including an unknown valentine, is ErrInvalidCode.
//
// The link is issued before the code is consumed, so a failed issue leaves the
// code usable for a retry. A link issued by a call that then loses the consume
// race is retired.
func (s *Service) VerifyOTP(ctx context.Context, valentineID, code string) (string, error) {
	const op = "redeem.VerifyOTP"
	now := s.now().UTC()
	valentineID = strings.TrimSpace(valentineID)
	code = strings.TrimSpace(code)

	if !ids.ValidULID(valentineID) || !otp.WellFormed(code) {
		s.metrics.OTPVerification(metrics.ResultInvalid)
		return "", OpError{Op: op, Kind: ErrInvalidCode}
	}

	rec, err := s.valentines.Get(ctx, valentineID)
	if err != nil {
		if errors.Is(err, valentine.ErrNotFound) {
			s.metrics.OTPVerification(metrics.ResultInvalid)
			s.log.InfoContext(ctx, "redeem.verify_otp.fail", "valentine_id", valentineID)
			return "", OpError{Op: op, Kind: ErrInvalidCode}
		}
		s.metrics.OTPVerification(metrics.ResultError)
		return "", fmt.Errorf("%s: get: %w", op, err)
	}
	if rec.Status != valentine.StatusPending || !otp.Matches(rec.OTPCode, rec.OTPExpiresAt, code, now) {
		s.metrics.OTPVerification(metrics.ResultInvalid)
		s.log.InfoContext(ctx, "redeem.verify_otp.fail", "valentine_id", valentineID)
		return "", OpError{Op: op, Kind: ErrInvalidCode}
	}
	if !now.Before(rec.LinkExpiresAt) {
		s.metrics.OTPVerification(metrics.ResultInvalid)
		return "", OpError{Op: op, Kind: ErrInvalidCode, Msg: "link window closed"}
	}

	link, err := s.issueLink(ctx, rec, now)
	if err != nil {
		s.metrics.OTPVerification(metrics.ResultError)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	rec, err = s.valentines.ConsumeOTP(ctx, valentineID, code, now)
	if err != nil {
		s.retireLink(ctx, valentineID, link, now)
		if errors.Is(err, valentine.ErrInvalidCode) || errors.Is(err, valentine.ErrNotFound) {
			s.metrics.OTPVerification(metrics.ResultInvalid)
			s.log.InfoContext(ctx, "redeem.verify_otp.fail", "valentine_id", valentineID)
			return "", OpError{Op: op, Kind: ErrInvalidCode}
		}
		s.metrics.OTPVerification(metrics.ResultError)
		return "", fmt.Errorf("%s: consume: %w", op, err)
	}

	s.notify(ctx, rec.ID, notify.TypeLink, rec.ReceiverPhone, notify.LinkBody(s.LinkURL(link.code)))
	s.metrics.OTPVerification(metrics.ResultOK)
	s.log.InfoContext(ctx, "redeem.verify_otp.ok", "valentine_id", rec.ID)
	return link.code, nil
}

type issuedLink struct {
	tokenID string
	code    string
}

// issueLink records a token, signs the capability and stores it behind a short code.
// When signing or minting fails the recorded token is retired.
func (s *Service) issueLink(ctx context.Context, rec valentine.Record, now time.Time) (issuedLink, error) {
	tokenID, err := ids.NewTokenID()
	if err != nil {
		return issuedLink{}, fmt.Errorf("token id: %w", err)
	}
	if _, err := s.ledger.RecordIssued(ctx, tokenID, rec.ID, rec.LinkExpiresAt, now); err != nil {
		return issuedLink{}, fmt.Errorf("ledger: %w", err)
	}
	link := issuedLink{tokenID: tokenID}

	signed, exp, err := s.signer.Sign(capability.Claims{
		ValentineID: rec.ID,
		TokenID:     tokenID,
		ExpiresAt:   rec.LinkExpiresAt,
	}, now)
	if err != nil {
		s.retireLink(ctx, rec.ID, link, now)
		return issuedLink{}, fmt.Errorf("sign: %w", err)
	}

	link.code, err = s.codes.Mint(ctx, shortcode.MintInput{
		Capability:  signed,
		TokenID:     tokenID,
		ValentineID: rec.ID,
		ExpiresAt:   exp,
		Now:         now,
	})
	if err != nil {
		s.retireLink(ctx, rec.ID, link, now)
		return issuedLink{}, fmt.Errorf("mint: %w", err)
	}
	return link, nil
}

// retireLink burns a token and short code that were never handed out.
func (s *Service) retireLink(ctx context.Context, valentineID string, link issuedLink, now time.Time) {
	if link.tokenID != "" {
		if _, err := s.ledger.MarkUsed(ctx, link.tokenID, now); err != nil {
			s.log.WarnContext(ctx, "redeem.link.retire_failed", "valentine_id", valentineID, "part", "token", "err", err)
		}
	}
	if link.code != "" {
		if err := s.codes.MarkUsed(ctx, link.code, now); err != nil {
			s.log.WarnContext(ctx, "redeem.link.retire_failed", "valentine_id", valentineID, "part", "short_code", "err", err)
		}
	}
}

// ResendOTP issues a fresh code for a PENDING, unverified valentine.
func (s *Service) ResendOTP(ctx context.Context, valentineID string) error {
	const op = "redeem.ResendOTP"
	now := s.now().UTC()
	valentineID = strings.TrimSpace(valentineID)

	if !ids.ValidULID(valentineID) {
		s.metrics.OTPResend(metrics.ResultNotFound)
		return OpError{Op: op, Kind: ErrNotFound}
	}
	rec, err := s.valentines.Get(ctx, valentineID)
	if err != nil {
		if errors.Is(err, valentine.ErrNotFound) {
			s.metrics.OTPResend(metrics.ResultNotFound)
			return OpError{Op: op, Kind: ErrNotFound}
		}
		s.metrics.OTPResend(metrics.ResultError)
		return fmt.Errorf("%s: get: %w", op, err)
	}
	if rec.Status != valentine.StatusPending || rec.OTPVerified {
		s.metrics.OTPResend(metrics.ResultInvalid)
		return invalidLink(op)
	}

	if ok, retry := s.resend.Allow(valentineID, now); !ok {
		s.metrics.OTPResend(metrics.ResultRateLimited)
		s.log.InfoContext(ctx, "redeem.resend_otp.rate_limited", "valentine_id", valentineID, "retry_after_s", int64(retry.Seconds()))
		return RateLimitError{Op: op, RetryAfter: retry}
	}

	code, err := s.otp.Issue(now)
	if err != nil {
		return fmt.Errorf("%s: otp: %w", op, err)
	}
	if err := s.valentines.SetOTP(ctx, valentineID, code.Value, code.ExpiresAt, now); err != nil {
		switch {
		case errors.Is(err, valentine.ErrNotPending):
			s.metrics.OTPResend(metrics.ResultInvalid)
			return invalidLink(op)
		case errors.Is(err, valentine.ErrNotFound):
			s.metrics.OTPResend(metrics.ResultNotFound)
			return OpError{Op: op, Kind: ErrNotFound}
		}
		s.metrics.OTPResend(metrics.ResultError)
		return fmt.Errorf("%s: store: %w", op, err)
	}

	s.notify(ctx, valentineID, notify.TypeOTP, rec.SenderPhone, notify.OTPBody(code.Value))
	s.metrics.OTPResend(metrics.ResultOK)
	s.log.InfoContext(ctx, "redeem.resend_otp.ok", "valentine_id", valentineID)
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
