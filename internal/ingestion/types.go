// Package ingestion defines the canonical record shapes stored in Postgres for
// both record families (court decisions and legislation), the per-field
// diagnostics produced while normalizing them, and the merge policy applied
// when a record is upserted over an existing row.
package ingestion

import (
	"fmt"
	"strings"
	"time"
)

// Family identifies a record family and, through Table, its relational table.
type Family string

const (
	FamilyDecision    Family = "decision"
	FamilyLegislation Family = "legislation"
)

// Table returns the relational table that stores the family.
func (f Family) Table() string {
	switch f {
	case FamilyLegislation:
		return "mevzuatlar"
	default:
		return "ictihatlar"
	}
}

// Decision is a normalized court decision. Nil pointers are nulls.
type Decision struct {
	ExternalID       string
	ItemType         string
	ItemTypeLabel    *string
	UnitID           *string
	UnitName         *string
	CaseYear         *int
	CaseSequence     *int
	DecisionYear     *int
	DecisionSequence *int
	CaseNo           *string
	DecisionNo       *string
	DecisionKind     *string
	DecisionDate     *time.Time
	DecisionDateRaw  *string
	FinalityStatus   *string
	Body             *string

	Diagnostics Diagnostics
}

// Legislation is a normalized piece of legislation.
type Legislation struct {
	ExternalID        string
	Number            *int
	Title             *string
	Type              string
	TypeLabel         *string
	Tertip            *int
	RegisteredAt      *time.Time
	UpdatedAt         *time.Time
	GazetteDate       *time.Time
	GazetteIssue      *string
	URL               *string
	Body              *string

	Diagnostics Diagnostics
}

// FieldError records one field that could not be coerced into its canonical
// type. The field is left null and the rest of the record is kept.
type FieldError struct {
	Field string
	Raw   string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Field, e.Raw, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Diagnostics is the list of field errors for one record.
type Diagnostics []FieldError

// Fields returns the names of the fields that failed.
func (d Diagnostics) Fields() []string {
	out := make([]string, 0, len(d))
	for _, fe := range d {
		out = append(out, fe.Field)
	}
	return out
}

func (d Diagnostics) String() string {
	parts := make([]string, 0, len(d))
	for _, fe := range d {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// Ack is returned by a successful upsert.
type Ack struct {
	ID       int64
	Inserted bool
}

// TypeCount is one row of the per-classification statistics.
type TypeCount struct {
	ItemType string
	Count    int64
}

// Stats summarises stored records of one family.
type Stats struct {
	Family Family
	ByType []TypeCount
	Total  int64
}

// MergeDecision applies the upsert policy: every scalar of incoming replaces
// the stored value, except the body which is only replaced by a non-empty
// incoming body.
func MergeDecision(existing, incoming Decision) Decision {
	merged := incoming
	merged.Body = mergeBody(existing.Body, incoming.Body)
	return merged
}

// MergeLegislation is MergeDecision for legislation.
func MergeLegislation(existing, incoming Legislation) Legislation {
	merged := incoming
	merged.Body = mergeBody(existing.Body, incoming.Body)
	return merged
}

func mergeBody(existing, incoming *string) *string {
	if incoming == nil || *incoming == "" {
		return existing
	}
	return incoming
}

// NonEmpty returns nil for the empty string, otherwise a pointer to s.
func NonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
