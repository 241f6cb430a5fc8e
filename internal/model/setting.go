package model

// Well-known system_settings keys.
const (
	SettingActiveSemester    = "active_semester"
	SettingHourCap           = "hour_cap"
	SettingBankName          = "bank_name"
	SettingBankAccountNumber = "bank_account_number"
	SettingBankAccountHolder = "bank_account_holder"
)

// KnownSetting reports whether key may be written through the settings API.
func KnownSetting(key string) bool {
	switch key {
	case SettingActiveSemester, SettingHourCap, SettingBankName, SettingBankAccountNumber, SettingBankAccountHolder:
		return true
	}
	return false
}

// Stats aggregates the dashboard figures.
type Stats struct {
	Students            int                       `json:"students"`
	StudentsWithDebt    int                       `json:"students_with_debt"`
	OutstandingHours    int64                     `json:"outstanding_hours"`
	OpenJobs            int                       `json:"open_jobs"`
	ApplicationsByState map[ApplicationStatus]int `json:"applications_by_status"`
	PaymentsByState     map[PaymentStatus]int     `json:"payments_by_status"`
	ApprovedAmount      int64                     `json:"approved_amount"`
	PendingClearances   int                       `json:"pending_clearances"`
}
