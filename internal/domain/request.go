package domain

import (
	"fmt"
	"strings"
)

// RefKind discriminates how an image reference gets resolved.
type RefKind string

const (
	RefInline RefKind = "inline"
	RefRemote RefKind = "remote"
)

// ImageRef points at one input image: either a URL to fetch or an
// inline base64 payload. Parsing a ref never touches the network and
// never decodes the payload.
type ImageRef struct {
	Kind RefKind
	// URL is set for remote refs (http, https or s3 scheme).
	URL string
	// Data is the raw base64 text for inline refs.
	Data string
}

// ParseImageRef classifies a wire string: a recognized URL scheme makes
// it remote, everything else is treated as inline base64.
func ParseImageRef(raw string) (ImageRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ImageRef{}, fmt.Errorf("%w: empty image reference", ErrInvalidRequest)
	}
	if hasRemoteScheme(trimmed) {
		return ImageRef{Kind: RefRemote, URL: trimmed}, nil
	}
	return ImageRef{Kind: RefInline, Data: trimmed}, nil
}

func hasRemoteScheme(s string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// Request is one unit of work: an operation name plus that operation's
// named inputs. Requests are immutable once submitted.
type Request struct {
	Operation string
	Inputs    map[string]ImageRef
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Operation) == "" {
		return fmt.Errorf("%w: operation is required", ErrInvalidRequest)
	}
	if len(r.Inputs) == 0 {
		return fmt.Errorf("%w: inputs are required", ErrInvalidRequest)
	}
	for role, ref := range r.Inputs {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%w: input role is required", ErrInvalidRequest)
		}
		switch ref.Kind {
		case RefInline:
			if ref.Data == "" {
				return fmt.Errorf("%w: input %q has no payload", ErrInvalidRequest, role)
			}
		case RefRemote:
			if ref.URL == "" {
				return fmt.Errorf("%w: input %q has no url", ErrInvalidRequest, role)
			}
		default:
			return fmt.Errorf("%w: input %q has unsupported kind %q", ErrInvalidRequest, role, ref.Kind)
		}
	}
	return nil
}
