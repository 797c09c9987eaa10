package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/obralink/oraculo/pkg/auth"
)

type validatorConfig struct {
	// Key is the exact API key value expected by this validator.
	Key string `json:"key"`

	// Subject is returned as claims.Subject.
	Subject string `json:"subject,omitempty"`

	// Email is returned as claims.Email.
	Email string `json:"email,omitempty"`

	// Scopes is returned as claims.Scopes.
	Scopes []string `json:"scopes,omitempty"`

	// Raw is returned as claims.Raw (role checks, etc).
	Raw map[string]any `json:"raw,omitempty"`
}

type validator struct {
	cfg validatorConfig
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg validatorConfig
	// Allow config to be either:
	// - JSON object: {"key":"...","subject":"..."}
	// - JSON string: "key-value"
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Key); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	}

	cfg.Key = strings.TrimSpace(cfg.Key)
	if cfg.Key == "" {
		return nil, errors.New("static auth: key is required")
	}
	cfg.Subject = strings.TrimSpace(cfg.Subject)
	if cfg.Subject == "" {
		cfg.Subject = "static"
	}
	if cfg.Raw == nil {
		cfg.Raw = map[string]any{}
	}

	return &validator{cfg: cfg}, nil
}

func (v *validator) Validate(credential string) (*auth.Claims, error) {
	credential = strings.TrimSpace(credential)
	if subtle.ConstantTimeCompare([]byte(credential), []byte(v.cfg.Key)) != 1 {
		return nil, errors.New("invalid api key")
	}
	return &auth.Claims{
		Subject: v.cfg.Subject,
		Email:   v.cfg.Email,
		Scopes:  v.cfg.Scopes,
		Raw:     v.cfg.Raw,
	}, nil
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}

func fmtError(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.New(msg + ": " + err.Error())
}
