package indexer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/internal/store"
)

// TableSpec describes how one relational table is mirrored into one index.
type TableSpec struct {
	Table    string
	Index    string
	Columns  []string
	Mapping  []byte
	Document func(store.Row) any
}

// Specs returns the known table specs keyed by table name.
func Specs() map[string]TableSpec {
	return map[string]TableSpec{
		"ictihatlar": {
			Table: "ictihatlar",
			Index: "ictihatlar",
			Columns: []string{
				"id", "document_id", "item_type", "item_type_adi", "birim_id", "birim_adi",
				"esas_no_yil", "esas_no_sira", "karar_no_yil", "karar_no_sira",
				"esas_no", "karar_no", "karar_turu", "karar_tarihi", "karar_tarihi_str",
				"kesinlesme_durumu", "karar_metni",
			},
			Mapping:  decisionMapping(),
			Document: func(r store.Row) any { return decisionDocument(r) },
		},
		"kararlar": {
			Table:    "kararlar",
			Index:    "kararlar",
			Columns:  []string{"id", "yargitay_dairesi", "esas_no", "karar_no", "karar_tarihi", "karar_metni"},
			Mapping:  legacyDecisionMapping(),
			Document: func(r store.Row) any { return legacyDocument(r) },
		},
		"mevzuatlar": {
			Table: "mevzuatlar",
			Index: "mevzuatlar",
			Columns: []string{
				"id", "mevzuat_id", "mevzuat_no", "mevzuat_adi", "mevzuat_tur", "mevzuat_tur_adi",
				"mevzuat_tertip", "kayit_tarihi", "guncelleme_tarihi", "resmi_gazete_tarihi",
				"resmi_gazete_sayisi", "url", "icerik",
			},
			Mapping:  legislationMapping(),
			Document: func(r store.Row) any { return legislationDocument(r) },
		},
	}
}

// DecisionDocument is the search document for a stored decision.
// YargitayDairesi repeats BirimAdi for clients of the legacy index.
type DecisionDocument struct {
	ID               int64   `json:"id"`
	DocumentID       string  `json:"documentId"`
	ItemType         string  `json:"itemType"`
	ItemTypeAdi      string  `json:"itemTypeAdi"`
	BirimID          string  `json:"birimId"`
	BirimAdi         string  `json:"birimAdi"`
	YargitayDairesi  string  `json:"yargitayDairesi"`
	EsasNoYil        *int64  `json:"esasNoYil"`
	EsasNoSira       *int64  `json:"esasNoSira"`
	KararNoYil       *int64  `json:"kararNoYil"`
	KararNoSira      *int64  `json:"kararNoSira"`
	EsasNo           string  `json:"esasNo"`
	KararNo          string  `json:"kararNo"`
	KararTuru        string  `json:"kararTuru"`
	KararTarihi      *string `json:"kararTarihi"`
	KararTarihiStr   string  `json:"kararTarihiStr"`
	KesinlesmeDurumu string  `json:"kesinlesmeDurumu"`
	KararMetni       string  `json:"kararMetni"`
}

// LegacyDocument is the search document for a row of the legacy kararlar
// table.
type LegacyDocument struct {
	ID              int64   `json:"id"`
	YargitayDairesi string  `json:"yargitayDairesi"`
	EsasNo          string  `json:"esasNo"`
	KararNo         string  `json:"kararNo"`
	KararTarihi     *string `json:"kararTarihi"`
	KararMetni      string  `json:"kararMetni"`
}

// LegislationDocument is the search document for stored legislation.
type LegislationDocument struct {
	ID                int64   `json:"id"`
	MevzuatID         string  `json:"mevzuatId"`
	MevzuatNo         *int64  `json:"mevzuatNo"`
	MevzuatAdi        string  `json:"mevzuatAdi"`
	MevzuatTur        string  `json:"mevzuatTur"`
	MevzuatTurAdi     string  `json:"mevzuatTurAdi"`
	MevzuatTertip     *int64  `json:"mevzuatTertip"`
	KayitTarihi       *string `json:"kayitTarihi"`
	GuncellemeTarihi  *string `json:"guncellemeTarihi"`
	ResmiGazeteTarihi *string `json:"resmiGazeteTarihi"`
	ResmiGazeteSayisi string  `json:"resmiGazeteSayisi"`
	URL               string  `json:"url"`
	Icerik            string  `json:"icerik"`
}

func decisionDocument(r store.Row) DecisionDocument {
	unit := rowString(r, "birim_adi")
	return DecisionDocument{
		ID:               rowID(r),
		DocumentID:       rowString(r, "document_id"),
		ItemType:         rowString(r, "item_type"),
		ItemTypeAdi:      rowString(r, "item_type_adi"),
		BirimID:          rowString(r, "birim_id"),
		BirimAdi:         unit,
		YargitayDairesi:  unit,
		EsasNoYil:        rowInt(r, "esas_no_yil"),
		EsasNoSira:       rowInt(r, "esas_no_sira"),
		KararNoYil:       rowInt(r, "karar_no_yil"),
		KararNoSira:      rowInt(r, "karar_no_sira"),
		EsasNo:           rowString(r, "esas_no"),
		KararNo:          rowString(r, "karar_no"),
		KararTuru:        rowString(r, "karar_turu"),
		KararTarihi:      rowDate(r, "karar_tarihi"),
		KararTarihiStr:   rowString(r, "karar_tarihi_str"),
		KesinlesmeDurumu: rowString(r, "kesinlesme_durumu"),
		KararMetni:       rowString(r, "karar_metni"),
	}
}

func legacyDocument(r store.Row) LegacyDocument {
	return LegacyDocument{
		ID:              rowID(r),
		YargitayDairesi: rowString(r, "yargitay_dairesi"),
		EsasNo:          rowString(r, "esas_no"),
		KararNo:         rowString(r, "karar_no"),
		KararTarihi:     rowDate(r, "karar_tarihi"),
		KararMetni:      rowString(r, "karar_metni"),
	}
}

func legislationDocument(r store.Row) LegislationDocument {
	return LegislationDocument{
		ID:                rowID(r),
		MevzuatID:         rowString(r, "mevzuat_id"),
		MevzuatNo:         rowInt(r, "mevzuat_no"),
		MevzuatAdi:        rowString(r, "mevzuat_adi"),
		MevzuatTur:        rowString(r, "mevzuat_tur"),
		MevzuatTurAdi:     rowString(r, "mevzuat_tur_adi"),
		MevzuatTertip:     rowInt(r, "mevzuat_tertip"),
		KayitTarihi:       rowDate(r, "kayit_tarihi"),
		GuncellemeTarihi:  rowDate(r, "guncelleme_tarihi"),
		ResmiGazeteTarihi: rowDate(r, "resmi_gazete_tarihi"),
		ResmiGazeteSayisi: rowString(r, "resmi_gazete_sayisi"),
		URL:               rowString(r, "url"),
		Icerik:            rowString(r, "icerik"),
	}
}

func rowID(r store.Row) int64 {
	if n := rowInt(r, "id"); n != nil {
		return *n
	}
	return 0
}

// rowString renders a column as a string; null becomes "".
func rowString(r store.Row, col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}

func rowInt(r store.Row, col string) *int64 {
	var n int64
	switch v := r[col].(type) {
	case int64:
		n = v
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case float64:
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

// rowDate renders a date or timestamp column as YYYY-MM-DD; null stays null.
func rowDate(r store.Row, col string) *string {
	var s string
	switch v := r[col].(type) {
	case time.Time:
		s = v.Format("2006-01-02")
	case string:
		if v == "" {
			return nil
		}
		s = v
		if len(s) > 10 {
			s = s[:10]
		}
	default:
		return nil
	}
	return &s
}
