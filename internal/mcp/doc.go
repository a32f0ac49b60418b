// Package mcp implements a Model Context Protocol client.
//
// The protocol is JSON-RPC 2.0 with newline-delimited framing. A
// Transport owns the communication channel (a subprocess's stdio, or a
// streamable HTTP endpoint) and feeds inbound messages to the Client,
// which correlates responses to pending requests and exposes the three
// operations the bridge needs: initialize, tools/list, and tools/call.
package mcp
