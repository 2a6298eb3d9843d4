// Package openaicompat implements provider.Provider for any OpenAI-compatible
// Chat Completions backend (vLLM, LiteLLM, Ollama, OpenAI). It handles
// request serialization, response parsing, model name mapping, and error
// mapping.
package openaicompat
