// Package llm defines the text-completion contract used by the intent
// classifier, together with a retrying, rate-limited decorator. Provider
// adapters live in the sub-packages (openai, anthropic, gemini, pythonbridge)
// and all of them report failures through the unified error codes so that the
// workflow can tell an upstream outage from a timeout.
package llm
