package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name    string
		d       ingestion.Decision
		invalid []string
	}{
		{"valid", ingestion.Decision{ExternalID: "123", ItemType: "KYB"}, nil},
		{"missing id", ingestion.Decision{ItemType: "KYB"}, []string{"documentId"}},
		{"blank id", ingestion.Decision{ExternalID: "  ", ItemType: "KYB"}, []string{"documentId"}},
		{"id too long", ingestion.Decision{ExternalID: strings.Repeat("9", 51), ItemType: "KYB"}, []string{"documentId"}},
		{"missing type", ingestion.Decision{ExternalID: "1"}, []string{"itemType"}},
		{"missing both", ingestion.Decision{}, []string{"documentId", "itemType"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDecision(&tt.d)
			if tt.invalid == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, field := range tt.invalid {
				assert.Contains(t, verr.Fields, field)
			}
			assert.Len(t, verr.Fields, len(tt.invalid))
			assert.ErrorIs(t, err, apperrors.ErrMissingID)
		})
	}
}

func TestValidateDecisionAcceptsFiftyCharacterID(t *testing.T) {
	d := ingestion.Decision{ExternalID: strings.Repeat("a", 50), ItemType: "KYB"}
	assert.NoError(t, ValidateDecision(&d))
}

func TestValidateLegislation(t *testing.T) {
	title := "Türk Borçlar Kanunu"
	empty := " "
	assert.NoError(t, ValidateLegislation(&ingestion.Legislation{ExternalID: "m1", Title: &title}))

	err := ValidateLegislation(&ingestion.Legislation{Title: &empty})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mevzuatAdi: title is required; mevzuatId: external id is required", verr.Error())
}
