package deploykey

import (
	"fmt"
	"strings"
)

// Deploy key kinds. The kind prefix tells the backend which deployment
// class the key authorizes.
const (
	KindProd    = "prod"
	KindDev     = "dev"
	KindPreview = "preview"
)

// Key is a parsed deploy key of the form "<kind>:<deployment>|<secret>".
type Key struct {
	Kind       string
	Deployment string
	Secret     string
}

// ValidationError reports a deploy key that failed format or binding
// validation. Callers surface the reason and leave prior state untouched.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid deploy key: " + e.Reason
}

// ParseKey validates the format of a raw deploy key and returns its parts.
func ParseKey(raw string) (*Key, error) {
	if raw == "" {
		return nil, &ValidationError{Reason: "key is empty"}
	}

	prefix, secret, found := strings.Cut(raw, "|")
	if !found {
		return nil, &ValidationError{Reason: "missing '|' separator"}
	}
	if secret == "" {
		return nil, &ValidationError{Reason: "missing secret part"}
	}

	kind, deployment, found := strings.Cut(prefix, ":")
	if !found {
		return nil, &ValidationError{Reason: "missing ':' separator in key prefix"}
	}

	switch kind {
	case KindProd, KindDev, KindPreview:
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown key kind %q", kind)}
	}

	if !validDeploymentName(deployment) {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed deployment name %q", deployment)}
	}

	return &Key{Kind: kind, Deployment: deployment, Secret: secret}, nil
}

// ValidateKeyFor checks format and the binding invariant: the deployment
// name embedded in the key must equal the deployment it is being used for.
func ValidateKeyFor(raw, deployment string) error {
	key, err := ParseKey(raw)
	if err != nil {
		return err
	}
	if key.Deployment != deployment {
		return &ValidationError{
			Reason: fmt.Sprintf("key belongs to deployment %q, not %q", key.Deployment, deployment),
		}
	}
	return nil
}

// validDeploymentName accepts the backend's deployment naming scheme:
// lowercase alphanumerics and hyphens, starting with a letter.
func validDeploymentName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		case r == '-':
			if i == 0 || i == len(name)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
