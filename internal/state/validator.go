package state

import (
	"fmt"

	tvmerrors "github.com/kagenomi/tvm/internal/errors"
)

// ValidationResult holds the result of state validation.
type ValidationResult struct {
	Errors   []*tvmerrors.ValidationError // fatal issues that should prevent loading
	Warnings []*tvmerrors.ValidationError // non-fatal issues logged as warnings
}

// IsValid returns true if there are no fatal validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

func (r *ValidationResult) warn(field, message string) {
	r.Warnings = append(r.Warnings, tvmerrors.NewValidationError("state", field, "", message))
}

// validateVersion checks the state file format version.
func (r *ValidationResult) validateVersion(version string) {
	if version == "" {
		r.warn("version", "version is empty")
	} else if version != Version {
		r.warn("version", fmt.Sprintf("unknown version %q (expected %q)", version, Version))
	}
}

// ValidateInstalledState validates an InstalledState for integrity.
func ValidateInstalledState(st *InstalledState) *ValidationResult {
	result := &ValidationResult{}

	result.validateVersion(st.Version)

	for name, tool := range st.Tools {
		if tool.Version == "" {
			result.warn(fmt.Sprintf("tools.%s.version", name), "version is empty")
		}
		if tool.InstallPath == "" {
			result.warn(fmt.Sprintf("tools.%s.installPath", name), "installPath is empty")
		}
	}

	return result
}
