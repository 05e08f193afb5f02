// Package validator decides whether a normalized record can be persisted. A
// record without an external id or classification has no conflict key and is
// rejected; any other damage is carried as field diagnostics instead.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

const maxExternalIDLength = 50

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMissingID
}

// ValidateDecision checks the keys a decision upsert depends on.
func ValidateDecision(d *ingestion.Decision) error {
	errs := make(map[string]string)
	checkExternalID(errs, "documentId", d.ExternalID)
	if strings.TrimSpace(d.ItemType) == "" {
		errs["itemType"] = "item type is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateLegislation checks the keys a legislation upsert depends on.
func ValidateLegislation(l *ingestion.Legislation) error {
	errs := make(map[string]string)
	checkExternalID(errs, "mevzuatId", l.ExternalID)
	if l.Title == nil || strings.TrimSpace(*l.Title) == "" {
		errs["mevzuatAdi"] = "title is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkExternalID(errs map[string]string, field, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		errs[field] = "external id is required"
	} else if len(id) > maxExternalIDLength {
		errs[field] = fmt.Sprintf("external id must be at most %d characters", maxExternalIDLength)
	}
}
