package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("VESPER_AUTH_MODE", string(ModeDev))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("VESPER_AUTH_MODE must be one of: oidc, dev, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:             mode,
		RolesClaim:       env.String("VESPER_AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:       env.String("VESPER_AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL:    env.String("VESPER_OIDC_ISSUER_URL", ""),
		OIDCClientID:     env.String("VESPER_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: env.String("VESPER_OIDC_CLIENT_SECRET", ""),
		OIDCScopes:       parseScopes(env.String("VESPER_OIDC_SCOPES", "openid profile email")),
		DevSubject:       env.String("VESPER_DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:         env.String("VESPER_DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevRoles:         parseCSV(env.String("VESPER_DEV_AUTH_ROLES", "admin")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(string(c.Mode)) == "" {
		return errors.New("VESPER_AUTH_MODE is required")
	}
	if strings.TrimSpace(c.RolesClaim) == "" {
		return errors.New("VESPER_AUTH_ROLES_CLAIM is required")
	}
	if strings.TrimSpace(c.EmailClaim) == "" {
		return errors.New("VESPER_AUTH_EMAIL_CLAIM is required")
	}

	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("VESPER_OIDC_ISSUER_URL is required when VESPER_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("VESPER_OIDC_CLIENT_ID is required when VESPER_AUTH_MODE=oidc")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("VESPER_DEV_AUTH_SUBJECT is required when VESPER_AUTH_MODE=dev")
		}
		if len(c.DevRoles) == 0 {
			return errors.New("VESPER_DEV_AUTH_ROLES must be non-empty when VESPER_AUTH_MODE=dev")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}

	return nil
}

func parseScopes(value string) []string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return []string{"openid", "profile", "email"}
	}
	return fields
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
