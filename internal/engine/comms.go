package engine

import (
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// CommsCrisisCeiling bounds the comms crisis drill.
const CommsCrisisCeiling = 8 * time.Minute

func newCommsCrisis() *sequenceEngine {
	return &sequenceEngine{
		mode:        models.ModeCommsCrisis,
		roles:       []string{"crisis_lead", "spokesperson", "legal_counsel", "social_media"},
		openingLine: "A leaked internal memo is trending. Journalists are calling for comment.",
		ceiling:     CommsCrisisCeiling,
		timeoutLine: "The story ran without a response from the company. The narrative is lost.",
		steps: []step{
			{"comms-ack", "acknowledge_incident", "Acknowledge the story and convene the crisis team", "Crisis team convened."},
			{"comms-draft", "draft_holding_statement", "Draft a holding statement", "Holding statement drafted."},
			{"comms-legal", "legal_review", "Clear the statement with legal", "Legal has cleared the wording."},
			{"comms-brief", "brief_executives", "Brief the executive team", "Executives briefed and aligned."},
			{"comms-publish", "publish_statement", "Publish the statement on all channels", "Statement published."},
			{"comms-monitor", "monitor_sentiment", "Monitor sentiment and respond to follow-ups", "Sentiment is stabilising. Coverage is balanced."},
		},
		injects: []string{
			"A second outlet has picked up the story.",
			"An employee has posted about the memo from a personal account.",
			"A journalist's deadline is in twenty minutes.",
			"Board members are asking for a summary.",
		},
	}
}
