package indexer

import "encoding/json"

const turkishAnalyzer = "turkish_analyzer"

func analysisSettings(shards int) map[string]any {
	return map[string]any{
		"number_of_shards":   shards,
		"number_of_replicas": 0,
		"analysis": map[string]any{
			"analyzer": map[string]any{
				turkishAnalyzer: map[string]any{
					"type":      "custom",
					"tokenizer": "standard",
					"filter":    []string{"lowercase", "turkish_stemmer", "turkish_stop", "asciifolding"},
				},
			},
			"filter": map[string]any{
				"turkish_stemmer": map[string]any{"type": "stemmer", "language": "turkish"},
				"turkish_stop":    map[string]any{"type": "stop", "stopwords": "_turkish_"},
			},
		},
	}
}

func keyword() map[string]any { return map[string]any{"type": "keyword"} }
func integer() map[string]any { return map[string]any{"type": "integer"} }
func long() map[string]any    { return map[string]any{"type": "long"} }

func text() map[string]any {
	return map[string]any{"type": "text", "analyzer": turkishAnalyzer}
}

func keywordWithText() map[string]any {
	return map[string]any{
		"type":   "keyword",
		"fields": map[string]any{"text": text()},
	}
}

func date(format string) map[string]any {
	return map[string]any{"type": "date", "format": format}
}

func indexBody(shards int, properties map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"settings": analysisSettings(shards),
		"mappings": map[string]any{"properties": properties},
	})
	if err != nil {
		panic(err)
	}
	return body
}

func decisionMapping() []byte {
	return indexBody(2, map[string]any{
		"id":               long(),
		"documentId":       keyword(),
		"itemType":         keyword(),
		"itemTypeAdi":      keyword(),
		"birimId":          keyword(),
		"birimAdi":         keywordWithText(),
		"esasNoYil":        integer(),
		"esasNoSira":       integer(),
		"kararNoYil":       integer(),
		"kararNoSira":      integer(),
		"esasNo":           keyword(),
		"kararNo":          keyword(),
		"kararTuru":        keyword(),
		"kararTarihi":      date("yyyy-MM-dd||epoch_millis"),
		"kararTarihiStr":   keyword(),
		"kesinlesmeDurumu": keyword(),
		"kararMetni":       text(),
		"yargitayDairesi":  keyword(),
	})
}

func legacyDecisionMapping() []byte {
	return indexBody(1, map[string]any{
		"id":              long(),
		"yargitayDairesi": keywordWithText(),
		"esasNo":          keyword(),
		"kararNo":         keyword(),
		"kararTarihi":     date("yyyy-MM-dd||yyyy-MM-dd'T'HH:mm:ss||epoch_millis"),
		"kararMetni":      text(),
	})
}

func legislationMapping() []byte {
	return indexBody(1, map[string]any{
		"id":                long(),
		"mevzuatId":         keyword(),
		"mevzuatNo":         integer(),
		"mevzuatAdi":        keywordWithText(),
		"mevzuatTur":        keyword(),
		"mevzuatTurAdi":     keyword(),
		"mevzuatTertip":     integer(),
		"kayitTarihi":       date("yyyy-MM-dd||epoch_millis"),
		"guncellemeTarihi":  date("yyyy-MM-dd||epoch_millis"),
		"resmiGazeteTarihi": date("yyyy-MM-dd||epoch_millis"),
		"resmiGazeteSayisi": keyword(),
		"url":               keyword(),
		"icerik":            text(),
	})
}
