/*
Package locale renders ledger values for people.

PURPOSE:
  Message catalogue (go-i18n, embedded JSON files), month names, status
  labels, the year-toggle confirmation text, and currency formatting with the
  locale's separators ("R$ 1.234,56" in pt-BR).

USAGE:
  loc := locale.New("pt-BR", nil)
  fmt.Println(loc.FormatMoney(summary.TotalOwed))
  fmt.Println(decision.Describe(loc))
*/
package locale

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/alimony-tracker/ledger"
)

// DefaultLanguage is used when none is configured.
const DefaultLanguage = "pt-BR"

// CurrencySymbol prefixes every formatted amount.
const CurrencySymbol = "R$"

//go:embed locales/*.json
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	supported  []language.Tag
)

// Bundle loads every embedded active.<lang>.json file once.
func Bundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.BrazilianPortuguese)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			slog.Error("cannot read embedded locales", "component", "locale", "error", err)
			return
		}
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
				continue
			}
			mf, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name)
			if err != nil {
				slog.Error("cannot load locale", "component", "locale", "file", name, "error", err)
				continue
			}
			supported = append(supported, mf.Tag)
		}
	})
	return bundle
}

// Supported lists the languages with a message file.
func Supported() []language.Tag {
	Bundle()
	return supported
}

// =============================================================================
// LOCALIZER
// =============================================================================

// Localizer renders messages in one language. It implements ledger.Describer.
type Localizer struct {
	tag     language.Tag
	loc     *i18n.Localizer
	printer *message.Printer
	logger  *slog.Logger
}

// New builds a Localizer for lang (a BCP 47 tag such as "pt-BR" or "en").
// Unknown tags fall back to DefaultLanguage.
func New(lang string, logger *slog.Logger) *Localizer {
	if logger == nil {
		logger = slog.Default()
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		logger.Warn("unknown language, using default", "component", "locale", "lang", lang)
		tag = language.MustParse(DefaultLanguage)
	}
	return &Localizer{
		tag:     tag,
		loc:     i18n.NewLocalizer(Bundle(), tag.String(), DefaultLanguage),
		printer: message.NewPrinter(tag),
		logger:  logger.With("component", "locale"),
	}
}

func (l *Localizer) Tag() language.Tag { return l.tag }

// Msg translates id. A missing ID is returned as is.
func (l *Localizer) Msg(id string, data map[string]any) string {
	msg, err := l.loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		l.logger.Debug("missing translation", "key", id, "error", err)
		return id
	}
	return msg
}

// =============================================================================
// VALUES
// =============================================================================

// FormatMoney renders m with the currency symbol and the locale's separators.
func (l *Localizer) FormatMoney(m ledger.Money) string {
	return CurrencySymbol + " " + l.printer.Sprintf("%.2f", m.Float64())
}

// FormatDate renders d as DD/MM/YYYY whatever the language.
func (l *Localizer) FormatDate(d ledger.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Display()
}

func monthKey(m int) string { return KeyMonthPrefix + strconv.Itoa(m) }

func (l *Localizer) MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return m.String()
	}
	return l.Msg(monthKey(int(m)), nil)
}

func (l *Localizer) MonthStatus(s ledger.MonthStatus) string {
	switch s {
	case ledger.MonthPaid:
		return l.Msg(KeyMonthPaid, nil)
	case ledger.MonthPartial:
		return l.Msg(KeyMonthPartial, nil)
	case ledger.MonthUnpaid:
		return l.Msg(KeyMonthUnpaid, nil)
	default:
		return l.Msg(KeyMonthNotApplicable, nil)
	}
}

func (l *Localizer) DebtStatus(s ledger.DebtStatus) string {
	switch s {
	case ledger.DebtDelinquent:
		return l.Msg(KeyDebtDelinquent, nil)
	case ledger.DebtPartial:
		return l.Msg(KeyDebtPartial, nil)
	default:
		return l.Msg(KeyDebtClear, nil)
	}
}

// DescribeToggle is the confirmation prompt for a year toggle.
func (l *Localizer) DescribeToggle(d ledger.Decision) string {
	key := KeyToggleDisable
	if d.Action == ledger.ActionEnable {
		key = KeyToggleEnable
	}
	return l.Msg(key, map[string]any{"Year": d.Year, "Name": d.ChildName})
}

// Error turns an engine or client error into a message for the user.
func (l *Localizer) Error(err error) string {
	var verr *ledger.ValidationError
	switch {
	case err == nil:
		return ""
	case ledger.IsSessionInvalid(err):
		return l.Msg(KeySessionExpired, nil)
	case errors.Is(err, ledger.ErrUnreachable):
		return l.Msg(KeyUnreachable, nil)
	case errors.Is(err, ledger.ErrChildBusy):
		return l.Msg(KeyChildBusy, nil)
	case errors.Is(err, ledger.ErrStaleCache):
		return l.Msg(KeyStaleCache, nil)
	case errors.Is(err, ledger.ErrChildNotFound):
		return l.Msg(KeyChildNotFound, nil)
	case errors.As(err, &verr) && verr.Field == "amount":
		return l.Msg(KeyInvalidAmount, nil)
	case errors.As(err, &verr) && (verr.Field == "date" || verr.Field == "payment_date"):
		return l.Msg(KeyInvalidDate, nil)
	}
	var rejected *ledger.RejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return l.Msg(KeyGenericError, map[string]any{"Message": rejected.Message})
	}
	return l.Msg(KeyGenericError, map[string]any{"Message": fmt.Sprint(err)})
}
