// Package agent drafts email replies with a language model.
//
// # Overview
//
// A Generator receives the subject, the sender and the full rendered
// transcript of a thread and returns an Outcome: either a reply to send or
// an escalation that needs a human. No conversation state is kept between
// calls.
//
//	gen := agent.NewOpenAI(agent.OpenAIConfig{APIKey: key}, logger)
//	out, err := gen.Generate(ctx, agent.Request{
//	    Subject:    "Quote request",
//	    Sender:     "customer@example.com",
//	    Transcript: []agent.Turn{{Speaker: agent.SpeakerExternal, Text: "Hi"}},
//	})
//
// # Structured Outcome
//
// The OpenAI generator exposes two tools, send_reply and escalate, and
// requires the model to call one of them. The tool arguments become the
// Outcome. A response without a tool call, with an unknown tool, or with
// arguments that do not decode is reported as a *GenerationError.
package agent
