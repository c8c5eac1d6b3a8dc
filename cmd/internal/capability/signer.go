// Package capability signs and verifies the bearer tokens that authorize link redemption.
//
// A capability binds a valentine id to a ledger token id. It is minted once,
// after the sender proves phone ownership, and never leaves the server: the
// receiver only ever sees the short code that maps to it.
package capability

import (
	"errors"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	claimValentineID = "vid"
	claimTokenID     = "tid"
)

// Claims is the payload carried by a capability.
type Claims struct {
	ValentineID string
	TokenID     string
	ExpiresAt   time.Time
	IssuedAt    time.Time
	Issuer      string
}

// Signer issues and verifies capabilities with one process-wide key.
type Signer struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewSigner builds a Signer based on PASETO v4.public.
//
// It uses an Ed25519 asymmetric keypair and enforces issuer and expiration rules.
func NewSigner(cfg Config) (*Signer, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(strings.TrimSpace(cfg.PasetoV4SecretKeyHex))
	if err != nil {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}

	return &Signer{
		issuer:    cfg.Issuer,
		ttl:       cfg.TTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// PublicKeyHex exposes the verification key.
func (s *Signer) PublicKeyHex() string {
	return s.public.ExportHex()
}

// TTL returns the default capability lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues a capability for c. The expiry is now+TTL, capped at c.ExpiresAt when set.
func (s *Signer) Sign(c Claims, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(c.ValentineID) == "" || strings.TrimSpace(c.TokenID) == "" {
		return "", time.Time{}, ErrInvalidClaims
	}

	exp := now.Add(s.ttl)
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(exp) {
		exp = c.ExpiresAt
	}
	if !exp.After(now) {
		return "", time.Time{}, ErrInvalidClaims
	}

	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	_ = tok.Set(claimValentineID, c.ValentineID)
	_ = tok.Set(claimTokenID, c.TokenID)

	return tok.V4Sign(s.secret, nil), exp, nil
}

// Verify checks signature, issuer and expiry at now.
// Every failure is ErrInvalidOrExpired.
func (s *Signer) Verify(token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidOrExpired
	}

	// Fresh parser per call so rules never accumulate. The default parser
	// checks expiry against the wall clock, so time rules are ours.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))
	p.AddRule(validAt(now, s.clockSkew))

	parsed, err := p.ParseV4Public(s.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidOrExpired
	}

	exp, _ := parsed.GetExpiration()
	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	vid, err := parsed.GetString(claimValentineID)
	if err != nil || vid == "" {
		return Claims{}, ErrInvalidOrExpired
	}
	tid, err := parsed.GetString(claimTokenID)
	if err != nil || tid == "" {
		return Claims{}, ErrInvalidOrExpired
	}

	return Claims{
		ValentineID: vid,
		TokenID:     tid,
		ExpiresAt:   exp,
		IssuedAt:    iat,
		Issuer:      iss,
	}, nil
}

var errNotValidAt = errors.New("capability: outside validity window")

// validAt accepts tokens issued up to skew in the future and rejects them from
// their expiry onward. Skew never extends the expiry.
func validAt(now time.Time, skew time.Duration) paseto.Rule {
	return func(tok paseto.Token) error {
		iat, err := tok.GetIssuedAt()
		if err != nil {
			return err
		}
		nbf, err := tok.GetNotBefore()
		if err != nil {
			return err
		}
		exp, err := tok.GetExpiration()
		if err != nil {
			return err
		}

		early := now.Add(skew)
		if early.Before(iat) || early.Before(nbf) || !now.Before(exp) {
			return errNotValidAt
		}
		return nil
	}
}
