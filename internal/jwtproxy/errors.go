package jwtproxy

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyPairMissing means the signature key pair needed for first
	// injection is unavailable. Provisioning must abort; retrying will not help
	// until the key pair is set up upstream.
	ErrKeyPairMissing = errors.New("key pair for machine authentication does not exist")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvariantViolation marks a programming defect or an environment that
	// was modified behind the provisioner's back.
	ErrInvariantViolation = errors.New("jwtproxy invariant violation")

	ErrPortRangeExhausted  = fmt.Errorf("%w: listen port range exhausted", ErrInvariantViolation)
	ErrDuplicateListenPort = fmt.Errorf("%w: duplicate listen port", ErrInvariantViolation)
)

// InfrastructureError wraps a failure while constructing or registering
// environment resources.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("jwtproxy %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func infraError(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}
