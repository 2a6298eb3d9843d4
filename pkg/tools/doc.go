// Package tools defines the descriptors, call context, and error taxonomy
// shared by the tool registry, the invocation router, and the conversation
// engine.
//
// A component contributes capabilities as a [ToolDescriptor] or
// [ResourceDescriptor]. Local descriptors carry an in-process [Handler];
// remote descriptors are reached over the request/response bus addressed
// to their owning component. Every invocation receives a fresh
// [CallContext] describing the caller.
//
// The package also validates tool arguments against JSON Schema input
// contracts and repairs malformed JSON arguments produced by a model.
package tools
