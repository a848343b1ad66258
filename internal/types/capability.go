package types

import (
	"fmt"
	"os"
	"time"
)

// CapabilityKey is the fixed handle-store key of the granted media root.
const CapabilityKey = "root"

// DirectoryCapability is the operator's grant of read/write access to a local folder.
type DirectoryCapability struct {
	Root      string    `json:"root"`
	GrantedAt time.Time `json:"grantedAt"`
}

// CapabilityError reports a missing, revoked or moved media root.
type CapabilityError struct {
	Root    string
	Message string
	Cause   error
}

func (e *CapabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("directory capability %q: %s: %v", e.Root, e.Message, e.Cause)
	}
	return fmt.Sprintf("directory capability %q: %s", e.Root, e.Message)
}

func (e *CapabilityError) Unwrap() error {
	return e.Cause
}

// Check verifies the root still exists, is a directory and accepts writes.
func (c DirectoryCapability) Check() error {
	if c.Root == "" {
		return &CapabilityError{Message: "no directory granted"}
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return &CapabilityError{Root: c.Root, Message: "root is not accessible", Cause: err}
	}
	if !info.IsDir() {
		return &CapabilityError{Root: c.Root, Message: "root is not a directory"}
	}
	probe, err := os.CreateTemp(c.Root, ".harvester-probe-*")
	if err != nil {
		return &CapabilityError{Root: c.Root, Message: "root is not writable", Cause: err}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
