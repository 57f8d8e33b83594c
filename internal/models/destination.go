package models

import (
	"errors"
	"fmt"
)

// DestinationKind distinguishes the two storage targets.
type DestinationKind string

const (
	// DestinationSandboxed is the app-private download root. Plain path I/O.
	DestinationSandboxed DestinationKind = "sandboxed"
	// DestinationGranted is a user-granted external location reached through a grant token.
	DestinationGranted DestinationKind = "granted"
)

// StorageDestination is where completed artifacts land. Exactly one is active at a
// time; a transfer session captures the destination it was started with.
type StorageDestination struct {
	Kind       DestinationKind `json:"kind"`
	BasePath   string          `json:"basePath,omitempty"`   // Sandboxed only
	GrantToken string          `json:"grantToken,omitempty"` // ExternallyGranted only
	Label      string          `json:"label,omitempty"`      // ExternallyGranted only, for display
}

// SandboxedAt returns a sandboxed destination rooted at basePath.
func SandboxedAt(basePath string) StorageDestination {
	return StorageDestination{Kind: DestinationSandboxed, BasePath: basePath}
}

// GrantedTo returns an externally granted destination for an issued token.
func GrantedTo(token, label string) StorageDestination {
	return StorageDestination{Kind: DestinationGranted, GrantToken: token, Label: label}
}

// IsGranted reports whether the destination goes through a grant.
func (d StorageDestination) IsGranted() bool {
	return d.Kind == DestinationGranted
}

// Ref is the value persisted alongside a resume record to identify the destination.
func (d StorageDestination) Ref() string {
	if d.IsGranted() {
		return d.GrantToken
	}
	return d.BasePath
}

// Validate checks that the variant-specific fields are populated.
func (d StorageDestination) Validate() error {
	switch d.Kind {
	case DestinationSandboxed:
		if d.BasePath == "" {
			return errors.New("sandboxed destination requires a base path")
		}
	case DestinationGranted:
		if d.GrantToken == "" {
			return errors.New("granted destination requires a grant token")
		}
	default:
		return fmt.Errorf("unknown destination kind %q", d.Kind)
	}
	return nil
}

func (d StorageDestination) String() string {
	if d.IsGranted() {
		if d.Label != "" {
			return fmt.Sprintf("external: %s", d.Label)
		}
		return "external: " + d.GrantToken
	}
	return "sandbox: " + d.BasePath
}
