// Package logging provides file-based logging with rotation for govreporter.
// Logs are written as JSON lines to ~/.govreporter/logs/ so that both the
// ingestion pipeline and the MCP server leave a diagnosable trail.
//
// In MCP server mode logs go ONLY to the file: stdout carries the JSON-RPC
// stream and stderr may be shown to the MCP client, so neither is safe.
package logging
