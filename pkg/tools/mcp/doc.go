// Package mcp attaches remote MCP (Model Context Protocol) servers to the
// invocation bus as components.
//
// Each configured server becomes one owner: its tools and resources are
// registered as remote descriptors with the server's configured visibility,
// and a [Bridge] answers the bus requests addressed to that owner by
// calling the server through the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Progress notifications sent by
// the server during a tool call are republished on the bus under the
// caller's progress token.
//
// Servers are reached over streamable HTTP or SSE and may authenticate
// with static headers or an OAuth 2.0 client credentials grant.
package mcp
