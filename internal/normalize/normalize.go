package normalize

import (
	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
)

// Decision maps a raw search entry onto a canonical decision. The body is
// left empty; it comes from a separate content call.
func Decision(raw bedesten.RawDecision) ingestion.Decision {
	var r fieldReader
	d := ingestion.Decision{
		UnitID:           r.str("birimId", raw.BirimID),
		UnitName:         r.str("birimAdi", raw.BirimAdi),
		CaseYear:         r.integer("esasNoYil", raw.EsasNoYil),
		CaseSequence:     r.integer("esasNoSira", raw.EsasNoSira),
		DecisionYear:     r.integer("kararNoYil", raw.KararNoYil),
		DecisionSequence: r.integer("kararNoSira", raw.KararNoSira),
		CaseNo:           r.str("esasNo", raw.EsasNo),
		DecisionNo:       r.str("kararNo", raw.KararNo),
		DecisionKind:     r.str("kararTuru", raw.KararTuru),
		FinalityStatus:   r.str("kesinlesmeDurumu", raw.KesinlesmeDurumu),
	}
	if id := r.str("documentId", raw.DocumentID); id != nil {
		d.ExternalID = *id
	}
	itemType, label := r.classification("itemType", raw.ItemType)
	if itemType != nil {
		d.ItemType = *itemType
	}
	d.ItemTypeLabel = label

	decided, rawDate := r.timestamp("kararTarihi", raw.KararTarihi)
	if decided != nil {
		date := DateOf(*decided)
		d.DecisionDate = &date
	}
	d.DecisionDateRaw = r.str("kararTarihiStr", raw.KararTarihiStr)
	if d.DecisionDateRaw == nil && decided == nil {
		d.DecisionDateRaw = rawDate
	}

	d.Diagnostics = r.diags
	return d
}

// Legislation maps a raw search entry onto a canonical legislation record.
func Legislation(raw bedesten.RawLegislation) ingestion.Legislation {
	var r fieldReader
	l := ingestion.Legislation{
		Number:       r.integer("mevzuatNo", raw.MevzuatNo),
		Title:        r.str("mevzuatAdi", raw.MevzuatAdi),
		Tertip:       r.integer("mevzuatTertip", raw.MevzuatTertip),
		GazetteIssue: r.str("resmiGazeteSayisi", raw.ResmiGazeteSayisi),
		URL:          r.str("url", raw.URL),
	}
	if id := r.str("mevzuatId", raw.MevzuatID); id != nil {
		l.ExternalID = *id
	}
	typ, label := r.classification("mevzuatTur", raw.MevzuatTur)
	if typ != nil {
		l.Type = *typ
	}
	l.TypeLabel = label

	l.RegisteredAt, _ = r.timestamp("kayitTarihi", raw.KayitTarihi)
	l.UpdatedAt, _ = r.timestamp("guncellemeTarihi", raw.GuncellemeTarihi)
	if gazette, _ := r.timestamp("resmiGazeteTarihi", raw.ResmiGazeteTarihi); gazette != nil {
		date := DateOf(*gazette)
		l.GazetteDate = &date
	}

	l.Diagnostics = r.diags
	return l
}
