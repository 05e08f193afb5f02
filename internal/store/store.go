// Package store is the relational sink for canonical records and the row
// source the reindex job reads from. Records are upserted by external id:
// scalar columns take the incoming value, while a stored body is only
// replaced by a non-empty incoming body.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/postgres"
)

//go:embed schema.sql
var schemaSQL string

// rawDateMaxLen is the width of the karar_tarihi_str column.
const rawDateMaxLen = 20

// Store persists records in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store over an open client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
}

// EnsureSchema creates the tables, indexes and the compatibility view if they
// do not exist yet. It is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schemaSQL); err != nil {
		return apperrors.Newf(apperrors.ErrPersistence, "store.schema", "applying schema: %v", err)
	}
	s.logger.Info("schema ensured")
	return nil
}

const upsertDecisionSQL = `
INSERT INTO ictihatlar (
	document_id, item_type, item_type_adi, birim_id, birim_adi,
	esas_no_yil, esas_no_sira, karar_no_yil, karar_no_sira,
	esas_no, karar_no, karar_turu, karar_tarihi, karar_tarihi_str,
	kesinlesme_durumu, karar_metni, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, CURRENT_TIMESTAMP
)
ON CONFLICT (document_id) DO UPDATE SET
	item_type = EXCLUDED.item_type,
	item_type_adi = EXCLUDED.item_type_adi,
	birim_id = EXCLUDED.birim_id,
	birim_adi = EXCLUDED.birim_adi,
	esas_no_yil = EXCLUDED.esas_no_yil,
	esas_no_sira = EXCLUDED.esas_no_sira,
	karar_no_yil = EXCLUDED.karar_no_yil,
	karar_no_sira = EXCLUDED.karar_no_sira,
	esas_no = EXCLUDED.esas_no,
	karar_no = EXCLUDED.karar_no,
	karar_turu = EXCLUDED.karar_turu,
	karar_tarihi = EXCLUDED.karar_tarihi,
	karar_tarihi_str = EXCLUDED.karar_tarihi_str,
	kesinlesme_durumu = EXCLUDED.kesinlesme_durumu,
	karar_metni = COALESCE(NULLIF(EXCLUDED.karar_metni, ''), ictihatlar.karar_metni),
	updated_at = CURRENT_TIMESTAMP
RETURNING id, (xmax = 0) AS inserted`

// UpsertDecision inserts or updates a decision keyed by its document id.
func (s *Store) UpsertDecision(ctx context.Context, d ingestion.Decision) (ingestion.Ack, error) {
	var ack ingestion.Ack
	err := s.db.DB.QueryRowContext(ctx, upsertDecisionSQL,
		d.ExternalID,
		d.ItemType,
		nullString(d.ItemTypeLabel),
		nullString(d.UnitID),
		nullString(d.UnitName),
		nullInt(d.CaseYear),
		nullInt(d.CaseSequence),
		nullInt(d.DecisionYear),
		nullInt(d.DecisionSequence),
		nullString(d.CaseNo),
		nullString(d.DecisionNo),
		nullString(d.DecisionKind),
		nullTime(d.DecisionDate),
		nullString(clip(d.DecisionDateRaw, rawDateMaxLen)),
		nullString(d.FinalityStatus),
		nullString(d.Body),
	).Scan(&ack.ID, &ack.Inserted)
	if err != nil {
		return ingestion.Ack{}, apperrors.Newf(apperrors.ErrPersistence, "store.upsert_decision", "document %s: %v", d.ExternalID, err)
	}
	return ack, nil
}

const upsertLegislationSQL = `
INSERT INTO mevzuatlar (
	mevzuat_id, mevzuat_no, mevzuat_adi, mevzuat_tur, mevzuat_tur_adi,
	mevzuat_tertip, kayit_tarihi, guncelleme_tarihi, resmi_gazete_tarihi,
	resmi_gazete_sayisi, url, icerik, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP
)
ON CONFLICT (mevzuat_id) DO UPDATE SET
	mevzuat_no = EXCLUDED.mevzuat_no,
	mevzuat_adi = EXCLUDED.mevzuat_adi,
	mevzuat_tur = EXCLUDED.mevzuat_tur,
	mevzuat_tur_adi = EXCLUDED.mevzuat_tur_adi,
	mevzuat_tertip = EXCLUDED.mevzuat_tertip,
	kayit_tarihi = EXCLUDED.kayit_tarihi,
	guncelleme_tarihi = EXCLUDED.guncelleme_tarihi,
	resmi_gazete_tarihi = EXCLUDED.resmi_gazete_tarihi,
	resmi_gazete_sayisi = EXCLUDED.resmi_gazete_sayisi,
	url = EXCLUDED.url,
	icerik = COALESCE(NULLIF(EXCLUDED.icerik, ''), mevzuatlar.icerik),
	updated_at = CURRENT_TIMESTAMP
RETURNING id, (xmax = 0) AS inserted`

// UpsertLegislation inserts or updates legislation keyed by its id.
func (s *Store) UpsertLegislation(ctx context.Context, l ingestion.Legislation) (ingestion.Ack, error) {
	var ack ingestion.Ack
	err := s.db.DB.QueryRowContext(ctx, upsertLegislationSQL,
		l.ExternalID,
		nullInt(l.Number),
		nullString(l.Title),
		nullString(ingestion.NonEmpty(l.Type)),
		nullString(l.TypeLabel),
		nullInt(l.Tertip),
		nullTime(l.RegisteredAt),
		nullTime(l.UpdatedAt),
		nullTime(l.GazetteDate),
		nullString(l.GazetteIssue),
		nullString(l.URL),
		nullString(l.Body),
	).Scan(&ack.ID, &ack.Inserted)
	if err != nil {
		return ingestion.Ack{}, apperrors.Newf(apperrors.ErrPersistence, "store.upsert_legislation", "mevzuat %s: %v", l.ExternalID, err)
	}
	return ack, nil
}

// Stats counts stored records of a family grouped by classification.
func (s *Store) Stats(ctx context.Context, family ingestion.Family) (ingestion.Stats, error) {
	column := "item_type"
	if family == ingestion.FamilyLegislation {
		column = "COALESCE(mevzuat_tur, '')"
	}
	query := fmt.Sprintf(
		`SELECT %s AS kind, COUNT(*) FROM %s GROUP BY kind ORDER BY COUNT(*) DESC, kind`,
		column, pq.QuoteIdentifier(family.Table()),
	)
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return ingestion.Stats{}, apperrors.Newf(apperrors.ErrPersistence, "store.stats", "%s: %v", family.Table(), err)
	}
	defer rows.Close()

	stats := ingestion.Stats{Family: family}
	for rows.Next() {
		var tc ingestion.TypeCount
		if err := rows.Scan(&tc.ItemType, &tc.Count); err != nil {
			return ingestion.Stats{}, fmt.Errorf("scanning stats row: %w", err)
		}
		stats.ByType = append(stats.ByType, tc)
		stats.Total += tc.Count
	}
	if err := rows.Err(); err != nil {
		return ingestion.Stats{}, fmt.Errorf("iterating stats rows: %w", err)
	}
	return stats, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func clip(s *string, n int) *string {
	if s == nil {
		return nil
	}
	r := []rune(*s)
	if len(r) <= n {
		return s
	}
	out := strings.TrimSpace(string(r[:n]))
	return &out
}
