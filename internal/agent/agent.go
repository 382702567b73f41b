// ABOUTME: Response generator contract: thread context in, structured outcome out
// ABOUTME: Outcomes are either a reply to send or an escalation for a human

package agent

import (
	"context"
	"fmt"
)

// Speaker labels a transcript turn
type Speaker string

const (
	SpeakerExternal  Speaker = "External"
	SpeakerAssistant Speaker = "Assistant"
	SpeakerOperator  Speaker = "Operator"
)

// Turn is one message of the transcript
type Turn struct {
	Speaker Speaker
	Text    string
}

// Request carries everything the generator sees. It holds no session state;
// the full transcript is sent on every call.
type Request struct {
	Subject    string
	Sender     string
	Transcript []Turn
}

// OutcomeKind distinguishes the two outcome variants
type OutcomeKind int

const (
	OutcomeReply OutcomeKind = iota
	OutcomeUnable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReply:
		return "reply"
	case OutcomeUnable:
		return "unable"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the generator's decision
type Outcome struct {
	Kind OutcomeKind

	// Text is the reply body for OutcomeReply, or an optional draft for OutcomeUnable.
	Text string

	// Reason explains an OutcomeUnable.
	Reason string
}

// Reply builds a sendable outcome
func Reply(text string) Outcome {
	return Outcome{Kind: OutcomeReply, Text: text}
}

// Unable builds an escalation outcome
func Unable(reason, draft string) Outcome {
	return Outcome{Kind: OutcomeUnable, Reason: reason, Text: draft}
}

// Generator drafts replies
type Generator interface {
	Generate(ctx context.Context, req Request) (Outcome, error)
}

// GenerationError reports an engine failure or output that could not be interpreted
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return "generation failed: " + e.Reason
}

func (e *GenerationError) Unwrap() error { return e.Err }
