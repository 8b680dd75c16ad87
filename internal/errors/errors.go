// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrStateNotFound  = errors.New("campaign state not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrCampaignBusy   = errors.New("campaign is owned by another run loop")
	ErrEngineClosed   = errors.New("engine is shut down")
	ErrPostNotFound   = errors.New("post not found")
	ErrOwnerNotFound  = errors.New("campaign owner not found")
)

// ErrCampaignNotFound is returned when no campaign document matches an id.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// Invalid wraps ErrInvalidRequest with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
