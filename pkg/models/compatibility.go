package models

import "github.com/google/uuid"

// CompatibilityCheck is the verdict of a preflight run. It is ephemeral -
// produced per call, never persisted. OK is true exactly when Reasons is empty;
// warnings alone do not fail a check.
type CompatibilityCheck struct {
	OK       bool     `json:"ok"`
	Reasons  []string `json:"reasons"`
	Warnings []string `json:"warnings"`
}

// AddReason appends a hard failure and flips OK.
func (c *CompatibilityCheck) AddReason(reason string) {
	c.Reasons = append(c.Reasons, reason)
	c.OK = false
}

// AddWarning appends a non-fatal warning.
func (c *CompatibilityCheck) AddWarning(warning string) {
	c.Warnings = append(c.Warnings, warning)
}

// NewCompatibilityCheck returns a passing check with empty (non-nil) slices so
// the JSON shape is stable for callers.
func NewCompatibilityCheck() *CompatibilityCheck {
	return &CompatibilityCheck{
		OK:       true,
		Reasons:  []string{},
		Warnings: []string{},
	}
}

// CompatibilityMatrix records which other installed apps a definition cannot
// coexist with. Patterns are anchored regular expressions matched against
// "key@version" strings; patterns that fail to compile are matched literally.
type CompatibilityMatrix struct {
	AppDefinitionID  uuid.UUID `json:"app_definition_id"`
	IncompatibleWith []string  `json:"incompatible_with"`
}
