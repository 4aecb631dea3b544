package locale

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/alimony-tracker/ledger"
)

// TestLocaleIntegrity ensures every message ID exists in every locale file.
func TestLocaleIntegrity(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("locales", "active.*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		var messages map[string]string
		require.NoError(t, json.Unmarshal(data, &messages), file)

		for _, key := range AllKeys() {
			assert.NotEmpty(t, messages[key], "%s is missing %s", file, key)
		}
	}
	assert.Len(t, Supported(), len(files))
}

func TestLocalizer_PortugueseDefaults(t *testing.T) {
	loc := New("", nil)

	assert.Equal(t, "Março", loc.MonthName(time.March))
	assert.Equal(t, "inadimplente", loc.DebtStatus(ledger.DebtDelinquent))
	assert.Equal(t, "parcialmente pago", loc.MonthStatus(ledger.MonthPartial))
	assert.Equal(t, "R$ 500,00", loc.FormatMoney(ledger.MustParseMoney("500")))
	assert.Equal(t, "R$ 0,50", loc.FormatMoney(ledger.MustParseMoney("0.5")))
}

func TestLocalizer_English(t *testing.T) {
	loc := New("en", nil)

	assert.Equal(t, "March", loc.MonthName(time.March))
	assert.Equal(t, "R$ 800.00", loc.FormatMoney(ledger.MustParseMoney("800")))
}

func TestLocalizer_DescribeToggle(t *testing.T) {
	child := ledger.Child{ID: 1, FullName: "Ana Souza", EnabledYears: ledger.YearSet{2024}}

	pt := New("pt-BR", nil)
	enable := ledger.ProposeToggle(child, 2023)
	assert.Contains(t, enable.Describe(pt), "HABILITAR o ano 2023")
	assert.Contains(t, enable.Describe(pt), "Ana Souza")
	assert.Contains(t, enable.Describe(pt), "aumentar")

	en := New("en", nil)
	disable := ledger.ProposeToggle(child, 2024)
	assert.Contains(t, disable.Describe(en), "decrease")
}

func TestLocalizer_Error(t *testing.T) {
	loc := New("en", nil)

	assert.Contains(t, loc.Error(&ledger.RejectedError{Status: 401}), "log in again")
	assert.Contains(t, loc.Error(ledger.ErrChildBusy), "previous action")
	assert.Contains(t, loc.Error(&ledger.ValidationError{Field: "amount"}), "positive amount")
	assert.Equal(t, "Error: Email já cadastrado", loc.Error(&ledger.RejectedError{Status: 409, Message: "Email já cadastrado"}))
	assert.Equal(t, "Error: boom", loc.Error(errors.New("boom")))
	assert.Empty(t, loc.Error(nil))
}

func TestLocalizer_UnknownKey(t *testing.T) {
	loc := New("pt-BR", nil)
	assert.Equal(t, "NoSuchKey", loc.Msg("NoSuchKey", nil))
}
