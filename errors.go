package infra

import "fmt"

// ConfigurationError reports a missing or malformed configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TopologyError reports an impossible network or service layout.
type TopologyError struct {
	Reason string
}

func (e *TopologyError) Error() string {
	return "topology error: " + e.Reason
}

// DuplicateExportError is returned when an export name is written twice, or
// written after a reader already asked for it.
type DuplicateExportError struct {
	Name      string
	Producer  string
	AfterRead bool
}

func (e *DuplicateExportError) Error() string {
	if e.AfterRead {
		return fmt.Sprintf("duplicate export %q: written by %s after it was read", e.Name, e.Producer)
	}
	return fmt.Sprintf("duplicate export %q: already written by %s", e.Name, e.Producer)
}

// NotFoundError is returned when an export is read before anyone wrote it.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("export %q not found", e.Name)
}
