package engine

import (
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// SevEscalationCeiling is how long the team has before the incident is lost.
const SevEscalationCeiling = 9 * time.Minute

func newSevEscalation() *sequenceEngine {
	return &sequenceEngine{
		mode:        models.ModeSevEscalation,
		roles:       []string{"incident_commander", "sre", "comms_lead", "scribe"},
		openingLine: "Checkout error rates are climbing across every region. Nobody owns the incident yet.",
		ceiling:     SevEscalationCeiling,
		timeoutLine: "The outage ran past the recovery window. Customers have escalated to the executive team.",
		steps: []step{
			{"sev-ack", "acknowledge_incident", "Acknowledge the alert and open an incident", "Incident opened. Triage is under way."},
			{"sev-assess", "assess_impact", "Assess customer impact and blast radius", "Impact assessed: checkout degraded in two regions."},
			{"sev-escalate", "escalate_severity", "Escalate severity and page the owning team", "Severity raised to SEV1. Payments on-call engaged."},
			{"sev-stabilize", "stabilize_service", "Roll back or mitigate to stabilize the service", "Mitigation applied. Error rates are falling."},
			{"sev-status", "post_status_update", "Publish a customer status update", "Status page updated. Support has a holding line."},
			{"sev-clear", "declare_all_clear", "Confirm recovery and declare all clear", "All clear declared. Post-incident review scheduled."},
		},
		injects: []string{
			"Support queue has doubled in the last few minutes.",
			"A large merchant is asking for an ETA on their account manager's line.",
			"Dashboards show retries amplifying load on the payments database.",
			"Social media is starting to notice failed checkouts.",
			"The on-call's laptop VPN just dropped.",
		},
	}
}
