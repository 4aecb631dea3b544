package locale

// Message IDs. Every ID must exist in every locales/active.*.json file.
const (
	KeyToggleEnable  = "ToggleEnable"
	KeyToggleDisable = "ToggleDisable"
	KeyToggleSaved   = "ToggleSaved"
	KeyToggleFailed  = "ToggleFailed"

	KeyDebtLabel       = "DebtLabel"
	KeyObligationLabel = "ObligationLabel"
	KeyAgeLabel        = "AgeLabel"
	KeyYearEnabled     = "YearEnabled"
	KeyYearDisabled    = "YearDisabled"
	KeyNoPayments      = "NoPayments"
	KeyNoChildren      = "NoChildren"

	KeyPaymentSaved    = "PaymentSaved"
	KeyPaymentDeleted  = "PaymentDeleted"
	KeyConfirmDelete   = "ConfirmDeletePayment"
	KeyInvalidAmount   = "InvalidAmount"
	KeyInvalidDate     = "InvalidDate"
	KeySessionExpired  = "SessionExpired"
	KeyUnreachable     = "Unreachable"
	KeyChildBusy       = "ChildBusy"
	KeyStaleCache      = "StaleCache"
	KeyChildNotFound   = "ChildNotFound"
	KeyGenericError    = "GenericError"
	KeyLoggedOut       = "LoggedOut"
	KeyLoggedIn        = "LoggedIn"

	KeyDebtClear      = "DebtClear"
	KeyDebtPartial    = "DebtPartial"
	KeyDebtDelinquent = "DebtDelinquent"

	KeyMonthNotApplicable = "MonthNotApplicable"
	KeyMonthUnpaid        = "MonthUnpaid"
	KeyMonthPartial       = "MonthPartial"
	KeyMonthPaid          = "MonthPaid"

	KeyMonthPrefix = "Month" // Month1 .. Month12
)

// AllKeys lists every fixed message ID, month names included.
func AllKeys() []string {
	keys := []string{
		KeyToggleEnable, KeyToggleDisable, KeyToggleSaved, KeyToggleFailed,
		KeyDebtLabel, KeyObligationLabel, KeyAgeLabel, KeyYearEnabled, KeyYearDisabled,
		KeyNoPayments, KeyNoChildren,
		KeyPaymentSaved, KeyPaymentDeleted, KeyConfirmDelete, KeyInvalidAmount, KeyInvalidDate,
		KeySessionExpired, KeyUnreachable, KeyChildBusy, KeyStaleCache, KeyChildNotFound,
		KeyGenericError, KeyLoggedOut, KeyLoggedIn,
		KeyDebtClear, KeyDebtPartial, KeyDebtDelinquent,
		KeyMonthNotApplicable, KeyMonthUnpaid, KeyMonthPartial, KeyMonthPaid,
	}
	for m := 1; m <= 12; m++ {
		keys = append(keys, monthKey(m))
	}
	return keys
}
