// Package notifications tells HR when a completed call needs a person to
// follow up, over Discord, APNs push and SMS.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/lukasbauer/apriori/internal/followup"
)

// Multi delivers each alert to every configured channel.
type Multi []followup.Alerter

// NotifyHumanFollowup implements followup.Alerter.
func (m Multi) NotifyHumanFollowup(ctx context.Context, alert followup.HumanFollowupAlert) {
	for _, a := range m {
		if a != nil {
			a.NotifyHumanFollowup(ctx, alert)
		}
	}
}

var riskLabels = map[followup.RiskLevel]string{
	followup.RiskLow:     "bajo",
	followup.RiskMedium:  "medio",
	followup.RiskHigh:    "alto",
	followup.RiskUnknown: "desconocido",
}

// Title is the short alert headline.
func Title(alert followup.HumanFollowupAlert) string {
	name := alert.EmployeeName
	if name == "" {
		name = alert.EmployeeID
	}
	return fmt.Sprintf("Seguimiento requerido: %s", name)
}

// Body is the one-paragraph alert text.
func Body(alert followup.HumanFollowupAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Riesgo de rotación %s", riskLabel(alert.RetentionRisk))
	if alert.Department != "" {
		fmt.Fprintf(&b, " en %s", alert.Department)
	}
	if alert.SatisfactionLevel != "" {
		fmt.Fprintf(&b, ", satisfacción: %s", alert.SatisfactionLevel)
	}
	if len(alert.Concerns) > 0 {
		fmt.Fprintf(&b, ". Preocupaciones: %s", strings.Join(alert.Concerns, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func riskLabel(r followup.RiskLevel) string {
	if l, ok := riskLabels[r]; ok {
		return l
	}
	return string(r)
}
