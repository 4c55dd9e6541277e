package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"breedstudio/internal/domain"
)

// CodeOrgVerification is surfaced to callers when the upstream account must
// verify its organization before image models can be used.
const (
	CodeOrgVerification = "ORG_VERIFICATION_REQUIRED"
	CodeUpstream        = "upstream_error"
)

const orgVerificationMarker = "organization must be verified"

// EditRequest describes one image-edit call.
type EditRequest struct {
	APIKey   string
	Prompt   string
	Image    []byte
	MIME     string
	Filename string
	Size     string
}

// Asset is a decoded image returned by a provider.
type Asset struct {
	Data   []byte
	Format string
}

// Editor is the contract implemented by image-edit providers.
type Editor interface {
	Edit(ctx context.Context, req EditRequest) (*Asset, error)
}

// ProviderError carries the upstream failure details. It unwraps to the
// domain sentinel matching its class.
type ProviderError struct {
	Code    string
	Status  int
	Message string
	Hint    string
	kind    error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("image provider: %s (status %d)", e.Message, e.Status)
	}
	return "image provider: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.kind }

// ClassifyMessage builds a ProviderError from an upstream message.
func ClassifyMessage(status int, message string) *ProviderError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "unknown upstream failure"
	}
	if strings.Contains(strings.ToLower(message), orgVerificationMarker) {
		return &ProviderError{
			Code:    CodeOrgVerification,
			Status:  http.StatusForbidden,
			Message: message,
			Hint:    domain.OrgVerificationHint,
			kind:    domain.ErrOrgVerification,
		}
	}
	return &ProviderError{Code: CodeUpstream, Status: status, Message: message, kind: domain.ErrProviderFailure}
}

// AsProviderError extracts a ProviderError from err.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
