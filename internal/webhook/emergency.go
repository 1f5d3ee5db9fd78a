// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package webhook

import (
	"strings"

	"github.com/jeranaias/bridgechat/internal/model"
)

// EmergencyCategory tags canned replies so the UI can mark them.
const EmergencyCategory = "emergency"

type cannedReply struct {
	keywords  []string
	text      string
	solutions []model.Solution
}

// cannedReplies are served while the webhook is considered unhealthy. The
// first entry whose keyword appears in the question wins.
var cannedReplies = []cannedReply{
	{
		keywords: []string{"fire", "smoke"},
		text:     "Offline guidance: fire on board. Raise the alarm and follow the vessel's fire muster list.",
		solutions: []model.Solution{{
			Title: "Immediate fire response",
			Steps: []string{
				"Sound the general alarm and notify the bridge",
				"Stop ventilation to the affected space",
				"Isolate fuel and electrical supply if safe to do so",
				"Muster the fire team with breathing apparatus",
			},
		}},
	},
	{
		keywords: []string{"flood", "water ingress", "leak", "bilge"},
		text:     "Offline guidance: water ingress. Locate the source and start bilge pumping.",
		solutions: []model.Solution{{
			Title: "Water ingress",
			Steps: []string{
				"Close watertight doors around the affected space",
				"Start bilge pumps and monitor levels",
				"Identify and isolate the source (sea chest, pipe, hull)",
			},
		}},
	},
	{
		keywords: []string{"engine", "overheat", "temperature", "alarm"},
		text:     "Offline guidance: machinery alarm. Reduce load and check cooling before restarting.",
		solutions: []model.Solution{{
			Title: "Machinery alarm triage",
			Steps: []string{
				"Reduce engine load",
				"Check jacket water and lube oil temperatures and pressures",
				"Inspect sea water strainers and cooler inlets",
			},
		}},
	},
}

const emergencyDefault = "The assistant is running in emergency mode and cannot reach the knowledge base. " +
	"Consult the vessel's manuals and contact shore support for anything safety critical."

// EmergencyReply returns a canned reply for a question without contacting
// the webhook.
func EmergencyReply(question string) *Reply {
	q := strings.ToLower(question)
	for _, c := range cannedReplies {
		for _, kw := range c.keywords {
			if strings.Contains(q, kw) {
				return &Reply{
					Kind:      KindStructured,
					Text:      c.text,
					Solutions: c.solutions,
					Metadata:  Metadata{Category: EmergencyCategory},
				}
			}
		}
	}
	return &Reply{Kind: KindText, Text: emergencyDefault, Metadata: Metadata{Category: EmergencyCategory}}
}
