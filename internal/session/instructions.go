package session

import (
	"fmt"
	"strings"
)

// Profile describes who the agent is speaking for and to.
type Profile struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	AgentName   string `json:"agent_name"`
	CompanyName string `json:"company_name"`
	// Script is an optional call script appended to the system instructions.
	Script string `json:"script,omitempty"`
}

func (p Profile) prospectName() string {
	if p.Name == "" {
		return "there"
	}
	return p.Name
}

func systemInstructions(p Profile, baseline string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a professional outbound sales representative for %s.\n\n", p.AgentName, p.CompanyName)
	b.WriteString("BUSINESS KNOWLEDGE:\n")
	b.WriteString(baseline)
	b.WriteString("\n")

	if p.Script != "" {
		b.WriteString("\nCALL SCRIPT:\n")
		b.WriteString(p.Script)
		b.WriteString("\n")
	}

	b.WriteString(`
Use this knowledge to engage prospects, introduce products and services, and convert qualified leads.
- Ask discovery questions conversationally.
- Capture budget, authority, need and timeline.
- Keep the tone friendly and consultative.
`)

	return b.String()
}

func openingInstructions(p Profile) string {
	return fmt.Sprintf(`Start the sales conversation immediately with this greeting or a natural variation:

Hi %s! This is %s calling from %s. I hope I'm catching you at a good time?

Transition into discovery questions naturally after the opening.`,
		p.prospectName(), p.AgentName, p.CompanyName)
}

// turnInstructions puts the turn-specific context first when there is any
// and otherwise answers from the baseline alone.
func turnInstructions(utterance, turnContext, baseline string) string {
	if turnContext != "" {
		return fmt.Sprintf(`The prospect just said: "%s"

MOST RELEVANT INFORMATION FOR THIS RESPONSE:
%s

GENERAL BUSINESS CONTEXT (if needed):
%s

Respond naturally to what they said using the most relevant information first. Work toward scheduling or closing.`,
			utterance, turnContext, baseline)
	}

	return fmt.Sprintf(`The prospect just said: "%s"

BUSINESS CONTEXT:
%s

Respond naturally to what they said using your business knowledge. Work toward scheduling or closing.`,
		utterance, baseline)
}
