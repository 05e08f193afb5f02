// Package memstore is an in-memory implementation of the relational sink and
// row source. It applies the same merge policy as the Postgres store and is
// used by dry runs and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/store"
)

type decisionRow struct {
	id        int64
	record    ingestion.Decision
	createdAt time.Time
	updatedAt time.Time
}

type legislationRow struct {
	id        int64
	record    ingestion.Legislation
	createdAt time.Time
	updatedAt time.Time
}

// Store keeps records in maps keyed by external id.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	decisions   map[string]*decisionRow
	legislation map[string]*legislationRow
	extra       map[string][]store.Row

	// FailUpsert, when set, is consulted before every upsert; a non-nil
	// result fails that upsert.
	FailUpsert func(externalID string) error
	now        func() time.Time
}

func New() *Store {
	return &Store{
		decisions:   make(map[string]*decisionRow),
		legislation: make(map[string]*legislationRow),
		extra:       make(map[string][]store.Row),
		now:         time.Now,
	}
}

// SeedTable registers an arbitrary table, such as the legacy kararlar
// table, for the row-source methods.
func (s *Store) SeedTable(table string, rows []store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra[table] = rows
}

func (s *Store) UpsertDecision(_ context.Context, d ingestion.Decision) (ingestion.Ack, error) {
	if s.FailUpsert != nil {
		if err := s.FailUpsert(d.ExternalID); err != nil {
			return ingestion.Ack{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	d.Diagnostics = nil
	if row, ok := s.decisions[d.ExternalID]; ok {
		row.record = ingestion.MergeDecision(row.record, d)
		row.updatedAt = now
		return ingestion.Ack{ID: row.id, Inserted: false}, nil
	}
	s.nextID++
	s.decisions[d.ExternalID] = &decisionRow{id: s.nextID, record: ingestion.MergeDecision(ingestion.Decision{}, d), createdAt: now, updatedAt: now}
	return ingestion.Ack{ID: s.nextID, Inserted: true}, nil
}

func (s *Store) UpsertLegislation(_ context.Context, l ingestion.Legislation) (ingestion.Ack, error) {
	if s.FailUpsert != nil {
		if err := s.FailUpsert(l.ExternalID); err != nil {
			return ingestion.Ack{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	l.Diagnostics = nil
	if row, ok := s.legislation[l.ExternalID]; ok {
		row.record = ingestion.MergeLegislation(row.record, l)
		row.updatedAt = now
		return ingestion.Ack{ID: row.id, Inserted: false}, nil
	}
	s.nextID++
	s.legislation[l.ExternalID] = &legislationRow{id: s.nextID, record: ingestion.MergeLegislation(ingestion.Legislation{}, l), createdAt: now, updatedAt: now}
	return ingestion.Ack{ID: s.nextID, Inserted: true}, nil
}

// Decision returns the stored decision and its update time.
func (s *Store) Decision(externalID string) (ingestion.Decision, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.decisions[externalID]
	if !ok {
		return ingestion.Decision{}, time.Time{}, false
	}
	return row.record, row.updatedAt, true
}

// Legislation returns the stored legislation record.
func (s *Store) Legislation(externalID string) (ingestion.Legislation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.legislation[externalID]
	if !ok {
		return ingestion.Legislation{}, false
	}
	return row.record, true
}

func (s *Store) Stats(_ context.Context, family ingestion.Family) (ingestion.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	if family == ingestion.FamilyLegislation {
		for _, row := range s.legislation {
			counts[row.record.Type]++
		}
	} else {
		for _, row := range s.decisions {
			counts[row.record.ItemType]++
		}
	}
	stats := ingestion.Stats{Family: family}
	for kind, n := range counts {
		stats.ByType = append(stats.ByType, ingestion.TypeCount{ItemType: kind, Count: n})
		stats.Total += n
	}
	sort.Slice(stats.ByType, func(i, j int) bool {
		if stats.ByType[i].Count != stats.ByType[j].Count {
			return stats.ByType[i].Count > stats.ByType[j].Count
		}
		return stats.ByType[i].ItemType < stats.ByType[j].ItemType
	})
	return stats, nil
}

func (s *Store) TableExists(_ context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch table {
	case "ictihatlar", "mevzuatlar":
		return true, nil
	}
	_, ok := s.extra[table]
	return ok, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	rows := s.rows(table)
	return int64(len(rows)), nil
}

// StreamRows hands rows to fn in id order, batchSize at a time. Only the
// requested columns are copied.
func (s *Store) StreamRows(ctx context.Context, table string, columns []string, batchSize int, fn func([]store.Row) error) error {
	rows := s.rows(table)
	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(rows))
		batch := make([]store.Row, 0, end-start)
		for _, r := range rows[start:end] {
			projected := make(store.Row, len(columns))
			for _, c := range columns {
				projected[c] = r[c]
			}
			batch = append(batch, projected)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) rows(table string) []store.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []store.Row
	switch table {
	case "ictihatlar":
		for _, r := range s.decisions {
			rows = append(rows, decisionToRow(r))
		}
	case "mevzuatlar":
		for _, r := range s.legislation {
			rows = append(rows, legislationToRow(r))
		}
	default:
		rows = append(rows, s.extra[table]...)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, _ := rows[i]["id"].(int64)
		b, _ := rows[j]["id"].(int64)
		return a < b
	})
	return rows
}

func decisionToRow(r *decisionRow) store.Row {
	d := r.record
	return store.Row{
		"id":                r.id,
		"document_id":       d.ExternalID,
		"item_type":         d.ItemType,
		"item_type_adi":     str(d.ItemTypeLabel),
		"birim_id":          str(d.UnitID),
		"birim_adi":         str(d.UnitName),
		"esas_no_yil":       integer(d.CaseYear),
		"esas_no_sira":      integer(d.CaseSequence),
		"karar_no_yil":      integer(d.DecisionYear),
		"karar_no_sira":     integer(d.DecisionSequence),
		"esas_no":           str(d.CaseNo),
		"karar_no":          str(d.DecisionNo),
		"karar_turu":        str(d.DecisionKind),
		"karar_tarihi":      timestamp(d.DecisionDate),
		"karar_tarihi_str":  str(d.DecisionDateRaw),
		"kesinlesme_durumu": str(d.FinalityStatus),
		"karar_metni":       str(d.Body),
		"created_at":        r.createdAt,
		"updated_at":        r.updatedAt,
	}
}

func legislationToRow(r *legislationRow) store.Row {
	l := r.record
	var typ any
	if l.Type != "" {
		typ = l.Type
	}
	return store.Row{
		"id":                  r.id,
		"mevzuat_id":          l.ExternalID,
		"mevzuat_no":          integer(l.Number),
		"mevzuat_adi":         str(l.Title),
		"mevzuat_tur":         typ,
		"mevzuat_tur_adi":     str(l.TypeLabel),
		"mevzuat_tertip":      integer(l.Tertip),
		"kayit_tarihi":        timestamp(l.RegisteredAt),
		"guncelleme_tarihi":   timestamp(l.UpdatedAt),
		"resmi_gazete_tarihi": timestamp(l.GazetteDate),
		"resmi_gazete_sayisi": str(l.GazetteIssue),
		"url":                 str(l.URL),
		"icerik":              str(l.Body),
		"created_at":          r.createdAt,
		"updated_at":          r.updatedAt,
	}
}

func str(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func integer(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func timestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
