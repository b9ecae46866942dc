package transform

import "fmt"

// Payment-method codes as recorded by the upstream store.
const (
	PayCashOperator   = 0
	PayBankOperator   = 1
	PayCashParkometer = 2
	PayBankParkometer = 3
	PayMobileApp      = 4
)

// Billing-endpoint payment categories.
const (
	KindCash = "CASH"
	KindCard = "CARD"
)

// paymentKinds maps upstream payment codes to billing categories.
var paymentKinds = map[int]string{
	PayCashOperator:   KindCash,
	PayBankOperator:   KindCard,
	PayCashParkometer: KindCash,
	PayBankParkometer: KindCard,
	PayMobileApp:      KindCard,
}

// paymentLabels maps upstream payment codes to human-readable labels.
var paymentLabels = map[int]string{
	PayCashOperator:   "нал оператор",
	PayBankOperator:   "банк оператор",
	PayCashParkometer: "нал паркомат",
	PayBankParkometer: "банк паркомат",
	PayMobileApp:      "мобильное приложение",
}

// weekdayNames maps ISO weekday numbers (1=Monday) to localized names.
var weekdayNames = map[int]string{
	1: "Понеділок",
	2: "Вівторок",
	3: "Середа",
	4: "Четвер",
	5: "Пʼятниця",
	6: "Субота",
	7: "Неділя",
}

// PaymentKind classifies a payment-method code as CASH or CARD.
// Unrecognized codes default to CASH.
func PaymentKind(code int) string {
	if kind, ok := paymentKinds[code]; ok {
		return kind
	}
	return KindCash
}

// PaymentKindLabel returns the human-readable label for a payment code,
// or "unknown" for unrecognized codes.
func PaymentKindLabel(code int) string {
	if label, ok := paymentLabels[code]; ok {
		return label
	}
	return "unknown"
}

// FormatWeekday renders an ISO weekday number as a numbered localized
// label, e.g. "1. Понеділок". Out-of-range numbers render empty.
func FormatWeekday(weekday int) string {
	name, ok := weekdayNames[weekday]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d. %s", weekday, name)
}
