package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMergeDecisionKeepsBodyUnlessReplaced(t *testing.T) {
	existing := Decision{ExternalID: "1", ItemType: "KYB", CaseNo: ptr("2020/1"), Body: ptr("eski metin")}

	t.Run("nil body keeps stored body", func(t *testing.T) {
		merged := MergeDecision(existing, Decision{ExternalID: "1", ItemType: "KYB", CaseNo: ptr("2020/2")})
		require.NotNil(t, merged.Body)
		assert.Equal(t, "eski metin", *merged.Body)
		assert.Equal(t, "2020/2", *merged.CaseNo)
	})

	t.Run("empty body keeps stored body", func(t *testing.T) {
		merged := MergeDecision(existing, Decision{ExternalID: "1", Body: ptr("")})
		assert.Equal(t, "eski metin", *merged.Body)
	})

	t.Run("new body replaces stored body", func(t *testing.T) {
		merged := MergeDecision(existing, Decision{ExternalID: "1", Body: ptr("yeni metin")})
		assert.Equal(t, "yeni metin", *merged.Body)
	})

	t.Run("incoming null scalars overwrite", func(t *testing.T) {
		merged := MergeDecision(existing, Decision{ExternalID: "1", ItemType: "KYB"})
		assert.Nil(t, merged.CaseNo)
	})
}

func TestMergeLegislation(t *testing.T) {
	existing := Legislation{ExternalID: "m", Body: ptr("metin")}
	assert.Equal(t, "metin", *MergeLegislation(existing, Legislation{ExternalID: "m"}).Body)
	assert.Equal(t, "yeni", *MergeLegislation(existing, Legislation{ExternalID: "m", Body: ptr("yeni")}).Body)
}

func TestFamilyTable(t *testing.T) {
	assert.Equal(t, "ictihatlar", FamilyDecision.Table())
	assert.Equal(t, "mevzuatlar", FamilyLegislation.Table())
}

func TestNonEmpty(t *testing.T) {
	assert.Nil(t, NonEmpty(""))
	assert.Equal(t, "x", *NonEmpty("x"))
}
