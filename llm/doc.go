// Package llm defines the provider-agnostic text generation contract:
// the Provider interface, the unified request/response types, and the
// error taxonomy shared by all adapters.
//
// Concrete adapters live under llm/providers; construction by kind is
// handled by llm/factory; timeout, retry and fallback policy is applied
// by llm/orchestrator.
package llm
