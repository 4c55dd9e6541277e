package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailure   = errors.New("provider failure")
	ErrOrgVerification   = errors.New("organization verification required")
	ErrMasterNotApproved = errors.New("master image not approved")
	ErrMasterMissing     = errors.New("master image not generated")
	ErrNoReference       = errors.New("reference image not set")
	ErrNoColors          = errors.New("breed has no colors")
	ErrBreedBusy         = errors.New("breed operation already running")
)

// OrgVerificationHint points operators at the page where the organization
// verification for image models is completed.
const OrgVerificationHint = "https://platform.openai.com/settings/organization/general"
