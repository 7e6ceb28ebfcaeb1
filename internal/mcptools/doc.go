// Package mcptools exposes slot listing and booking as MCP tools so agents can
// book on the owner's behalf through the same engine the HTTP API uses.
package mcptools
