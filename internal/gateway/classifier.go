package gateway

import (
	"regexp"
	"strings"

	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/gateway/domain"
)

// Classification tags a payment as likely sandbox traffic or a real sale.
type Classification string

const (
	ClassTest Classification = "test"
	ClassReal Classification = "real"
)

var shortNumericID = regexp.MustCompile(`^\d{1,6}$`)

// ClassifyPayment applies heuristics in priority order and returns on the
// first match. The result is an analytics tag only; it never gates
// authorization or stock effects.
func ClassifyPayment(info domain.PaymentInfo, heuristics config.ClassifierHeuristics) Classification {
	if info.TestFlag {
		return ClassTest
	}
	if !info.LiveMode {
		return ClassTest
	}

	method := strings.ToLower(strings.TrimSpace(info.Method))
	for _, zero := range heuristics.ZeroValueMethods {
		if method == strings.ToLower(strings.TrimSpace(zero)) {
			return ClassTest
		}
	}

	if info.TransactionAmount < heuristics.MinRealAmount {
		return ClassTest
	}

	email := strings.ToLower(strings.TrimSpace(info.PayerEmail))
	for _, marker := range heuristics.EmailMarkers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" && strings.Contains(email, marker) {
			return ClassTest
		}
	}

	if shortNumericID.MatchString(strings.TrimSpace(info.ID)) {
		return ClassTest
	}

	return ClassReal
}
