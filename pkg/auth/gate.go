package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMisconfigured is returned when the process has no expected API key.
	ErrMisconfigured = errors.New("no api key configured")
	// ErrMissing is returned when the request carries no API key header.
	ErrMissing = errors.New("missing api key in request")
	// ErrInvalid is returned when the presented key does not match.
	ErrInvalid = errors.New("incorrect api key")
)

// Gate validates the API key presented with a request.
type Gate interface {
	// Authorize checks a presented credential. present is false when the
	// request did not carry the header at all.
	Authorize(credential string, present bool) error

	// Header returns the name of the request header carrying the key.
	Header() string
}

// gate implements Gate. It only reads configuration fixed at construction.
type gate struct {
	header string
	key    []byte
	hash   []byte
}

// Ensure gate implements Gate.
var _ Gate = (*gate)(nil)

// NewGate creates a gate from the auth configuration.
func NewGate(log logrus.FieldLogger, cfg config.AuthConfig) Gate {
	g := &gate{
		header: cfg.Header,
	}

	switch {
	case cfg.APIKeyBcrypt != "":
		g.hash = []byte(cfg.APIKeyBcrypt)
	case cfg.APIKey != "":
		g.key = []byte(cfg.APIKey)
	default:
		log.WithFields(logrus.Fields{
			"component": "auth",
			"env":       cfg.APIKeyEnv,
		}).Warn("No API key configured, all protected requests will be rejected")
	}

	return g
}

// Header returns the API key header name.
func (g *gate) Header() string {
	return g.header
}

// Authorize checks the presented credential against the expected key.
func (g *gate) Authorize(credential string, present bool) error {
	if len(g.key) == 0 && len(g.hash) == 0 {
		return ErrMisconfigured
	}

	if !present {
		return ErrMissing
	}

	if len(g.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(g.hash, []byte(credential)); err != nil {
			return ErrInvalid
		}

		return nil
	}

	if subtle.ConstantTimeCompare(g.key, []byte(credential)) != 1 {
		return ErrInvalid
	}

	return nil
}
