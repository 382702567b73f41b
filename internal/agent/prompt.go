// ABOUTME: Prompt text for the response generator
// ABOUTME: Default system instructions and rendering of a thread into the user message

package agent

import (
	"strings"
)

// DefaultInstructions is used when no instructions are configured
const DefaultInstructions = `You are an email assistant answering customer mail on behalf of a company.

For each thread:
1. Review the whole conversation before answering. Do not repeat a summary of it back to the customer.
2. Identify what the customer is asking for.
3. If information you need is missing, ask only for the missing details. Never ask again for details already provided.
4. Keep a professional and formal tone.
5. Respond once per thread, taking the full history into account.`

const (
	toolSendReply = "send_reply"
	toolEscalate  = "escalate"
)

// RenderPrompt formats a request as the user message sent to the model
func RenderPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Read and analyze the following email thread.\n")
	b.WriteString("Subject: ")
	b.WriteString(req.Subject)
	b.WriteString("\nSender: ")
	b.WriteString(req.Sender)
	b.WriteString("\nThread History:\n")
	b.WriteString(RenderTranscript(req.Transcript))
	b.WriteString("\n\n")
	b.WriteString("Write a formal email reply in a polite and professional tone, with a salutation, clear paragraphs, and a closing. ")
	b.WriteString("Call " + toolSendReply + " with the reply body. ")
	b.WriteString("If you cannot respond or the question is irrelevant, call " + toolEscalate + " with the reason instead.")

	return b.String()
}

// RenderTranscript renders turns as "Speaker: text" lines
func RenderTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, string(t.Speaker)+": "+strings.TrimSpace(t.Text))
	}
	return strings.Join(lines, "\n")
}
