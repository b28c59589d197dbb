package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type providerInput struct {
	Name    string `validate:"required,max=255"`
	BaseURL string `validate:"required,baseurl"`
}

type triggerInput struct {
	SyncType string `validate:"required,synctype"`
}

func TestValidate_CustomTags(t *testing.T) {
	assert.NoError(t, Validate(providerInput{Name: "prod", BaseURL: "https://n8n.example.com"}))
	assert.NoError(t, Validate(triggerInput{SyncType: "full"}))
	assert.NoError(t, ValidateVar("deleted_from_n8n", "lifecycle"))

	assert.Error(t, Validate(providerInput{Name: "prod", BaseURL: "n8n.example.com"}))
	assert.Error(t, Validate(providerInput{Name: "prod", BaseURL: "ftp://n8n.example.com"}))
	assert.Error(t, Validate(triggerInput{SyncType: "everything"}))
	assert.Error(t, ValidateVar("gone", "lifecycle"))
}

func TestFormatErrors(t *testing.T) {
	err := Validate(providerInput{BaseURL: "nope"})
	require.Error(t, err)

	formatted := FormatErrors(err)
	require.Len(t, formatted, 2)
	assert.Equal(t, "name", formatted[0].Field)
	assert.Equal(t, "This field is required", formatted[0].Message)
	assert.Equal(t, "base_url", formatted[1].Field)
	assert.Contains(t, formatted[1].Message, "http")

	assert.Empty(t, FormatErrors(assert.AnError))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "prod eu", SanitizeString("  prod \x00  eu "))
	assert.Equal(t, "Prod (EU)", SanitizeName(" Prod  (EU)!; "))
	assert.Equal(t, "https://n8n.example.com", SanitizeBaseURL(" https://n8n.example.com// "))
}
