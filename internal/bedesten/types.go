package bedesten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DecisionItemTypes lists the court-decision families the API serves.
var DecisionItemTypes = map[string]string{
	"YARGITAYKARARI": "Yargıtay Kararı",
	"DANISTAYKARAR":  "Danıştay Kararı",
	"YERELHUKUK":     "Yerel Hukuk Mahkemesi Kararı",
	"ISTINAFHUKUK":   "İstinaf Hukuk Mahkemesi Kararı",
	"KYB":            "Kanun Yararına Bozma Kararları",
}

// LegislationTypes lists the legislation families the API serves.
var LegislationTypes = map[string]string{
	"KANUN":         "Kanun",
	"CB_KARARNAME":  "Cumhurbaşkanlığı Kararnamesi",
	"YONETMELIK":    "Yönetmelik",
	"CB_YONETMELIK": "Cumhurbaşkanlığı Yönetmeliği",
	"CB_KARAR":      "Cumhurbaşkanı Kararı",
	"CB_GENELGE":    "Cumhurbaşkanlığı Genelgesi",
	"KHK":           "Kanun Hükmünde Kararname",
	"TUZUK":         "Tüzük",
	"KKY":           "Kurum ve Kuruluş Yönetmeliği",
	"UY":            "Üniversite Yönetmeliği",
	"TEBLIGLER":     "Tebliğler",
	"MULGA":         "Mülga Mevzuat",
}

// SortedKeys returns the keys of a type catalogue in a stable order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// request is the envelope every POST body is wrapped in.
type request struct {
	Data            any    `json:"data,omitempty"`
	ApplicationName string `json:"applicationName,omitempty"`
	Paging          bool   `json:"paging,omitempty"`
}

// response is the envelope every reply is wrapped in. FMTY is "SUCCESS" on
// success; otherwise FMTE carries the reason.
type response struct {
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		FMTY string `json:"FMTY"`
		FMTE string `json:"FMTE"`
	} `json:"metadata"`
}

// DecisionQuery filters a decision search. Zero values are omitted from the
// request.
type DecisionQuery struct {
	ItemType     string
	Phrase       string
	UnitID       string
	CaseYear     int
	DecisionYear int
}

// HasFilter reports whether any narrowing filter besides the item type is set.
func (q DecisionQuery) HasFilter() bool {
	return q.Phrase != "" || q.UnitID != "" || q.CaseYear != 0 || q.DecisionYear != 0
}

type decisionSearchData struct {
	PageSize      int      `json:"pageSize"`
	PageNumber    int      `json:"pageNumber"`
	ItemTypeList  []string `json:"itemTypeList"`
	SortFields    []string `json:"sortFields"`
	SortDirection string   `json:"sortDirection"`
	Phrase        string   `json:"phrase,omitempty"`
	BirimIDList   []string `json:"birimIdList,omitempty"`
	EsasNoYil     int      `json:"esasNoYil,omitempty"`
	KararNoYil    int      `json:"kararNoYil,omitempty"`
}

type legislationSearchData struct {
	PageSize       int      `json:"pageSize"`
	PageNumber     int      `json:"pageNumber"`
	MevzuatTurList []string `json:"mevzuatTurList"`
	SortFields     []string `json:"sortFields"`
	SortDirection  string   `json:"sortDirection"`
}

// RawDecision is one entry of a decision search page. Every field is kept
// raw so a value of an unexpected type only damages that field.
type RawDecision struct {
	DocumentID       json.RawMessage `json:"documentId"`
	ItemType         json.RawMessage `json:"itemType"`
	BirimID          json.RawMessage `json:"birimId"`
	BirimAdi         json.RawMessage `json:"birimAdi"`
	EsasNoYil        json.RawMessage `json:"esasNoYil"`
	EsasNoSira       json.RawMessage `json:"esasNoSira"`
	KararNoYil       json.RawMessage `json:"kararNoYil"`
	KararNoSira      json.RawMessage `json:"kararNoSira"`
	EsasNo           json.RawMessage `json:"esasNo"`
	KararNo          json.RawMessage `json:"kararNo"`
	KararTuru        json.RawMessage `json:"kararTuru"`
	KararTarihi      json.RawMessage `json:"kararTarihi"`
	KararTarihiStr   json.RawMessage `json:"kararTarihiStr"`
	KesinlesmeDurumu json.RawMessage `json:"kesinlesmeDurumu"`
}

// RawLegislation is one entry of a legislation search page.
type RawLegislation struct {
	MevzuatID         json.RawMessage `json:"mevzuatId"`
	MevzuatNo         json.RawMessage `json:"mevzuatNo"`
	MevzuatAdi        json.RawMessage `json:"mevzuatAdi"`
	MevzuatTur        json.RawMessage `json:"mevzuatTur"`
	MevzuatTertip     json.RawMessage `json:"mevzuatTertip"`
	KayitTarihi       json.RawMessage `json:"kayitTarihi"`
	GuncellemeTarihi  json.RawMessage `json:"guncellemeTarihi"`
	ResmiGazeteTarihi json.RawMessage `json:"resmiGazeteTarihi"`
	ResmiGazeteSayisi json.RawMessage `json:"resmiGazeteSayisi"`
	URL               json.RawMessage `json:"url"`
}

// DecisionPage is one page of decision search results.
type DecisionPage struct {
	Items []RawDecision `json:"emsalKararList"`
	Total int           `json:"total"`
}

// LegislationPage is one page of legislation search results.
type LegislationPage struct {
	Items []RawLegislation `json:"mevzuatList"`
	Total int              `json:"total"`
}

type documentContent struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

// CatalogEntry is one element of an enumeration endpoint (item types, units).
// The shape differs per endpoint, so entries are kept as loose maps.
type CatalogEntry map[string]any

// Lookup returns the first of keys that is present, formatted as a string.
func (e CatalogEntry) Lookup(keys ...string) string {
	for _, k := range keys {
		if v, ok := e[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func (e CatalogEntry) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e[k]))
	}
	return strings.Join(parts, " ")
}
