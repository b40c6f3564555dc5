package listing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalized lifecycle statuses
const (
	StatusActive     = "Active"
	StatusPending    = "Pending"
	StatusSold       = "Sold"
	StatusExpired    = "Expired"
	StatusWithdrawn  = "Withdrawn"
	StatusCanceled   = "Canceled"
	StatusComingSoon = "ComingSoon"
)

// statusAliases maps lowercased, separator-free upstream values onto normalized statuses.
var statusAliases = map[string]string{
	"active":              StatusActive,
	"activeundercontract": StatusPending,
	"pending":             StatusPending,
	"undercontract":       StatusPending,
	"sold":                StatusSold,
	"closed":              StatusSold,
	"expired":             StatusExpired,
	"withdrawn":           StatusWithdrawn,
	"canceled":            StatusCanceled,
	"cancelled":           StatusCanceled,
	"comingsoon":          StatusComingSoon,
}

var separatorReplacer = strings.NewReplacer(" ", "", "_", "", "-", "")

// NormalizeStatus maps a raw upstream status onto the normalized lifecycle vocabulary.
// Unknown values are trimmed and title-cased rather than rejected.
func NormalizeStatus(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	key := strings.ToLower(separatorReplacer.Replace(trimmed))
	if status, ok := statusAliases[key]; ok {
		return status
	}

	return cases.Title(language.English).String(strings.ToLower(trimmed))
}
