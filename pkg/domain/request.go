package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// TransferRequest is the immutable input of one orchestration.
type TransferRequest struct {
	ObjectID   string `json:"object_id"`
	InstanceID string `json:"instance_id"`
}

// NewTransferRequest validates objectID and assigns a fresh correlation id.
func NewTransferRequest(objectID string) (TransferRequest, error) {
	if err := ValidateObjectID(objectID); err != nil {
		return TransferRequest{}, err
	}
	return TransferRequest{
		ObjectID:   objectID,
		InstanceID: uuid.NewString(),
	}, nil
}

// ValidateObjectID rejects identifiers that would escape the remote base
// directory or produce an ambiguous remote path. Forward slashes are allowed
// so nested object names map onto remote subdirectories.
func ValidateObjectID(objectID string) error {
	if objectID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidObjectID)
	}
	if strings.HasPrefix(objectID, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidObjectID, objectID)
	}
	if strings.Contains(objectID, `\`) {
		return fmt.Errorf("%w: %q contains a backslash", ErrInvalidObjectID, objectID)
	}
	for _, r := range objectID {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidObjectID, objectID)
		}
	}
	for _, segment := range strings.Split(objectID, "/") {
		switch segment {
		case "":
			return fmt.Errorf("%w: %q contains an empty path segment", ErrInvalidObjectID, objectID)
		case ".", "..":
			return fmt.Errorf("%w: %q contains a relative path segment", ErrInvalidObjectID, objectID)
		}
	}
	return nil
}

// ValidateInstanceID rejects correlation ids that cannot serve as a single
// storage key: empty, path-like, or containing control characters.
func ValidateInstanceID(instanceID string) error {
	switch {
	case instanceID == "":
		return fmt.Errorf("%w: empty", ErrInvalidInstanceID)
	case instanceID == "." || instanceID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidInstanceID, instanceID)
	case strings.ContainsAny(instanceID, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidInstanceID, instanceID)
	}
	for _, r := range instanceID {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidInstanceID, instanceID)
		}
	}
	return nil
}
