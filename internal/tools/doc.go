// Package tools defines the gateway's tool registry and builtin tools.
//
// A Tool couples a name and description with a strict input schema, an
// execution handler, and an approval flag. The Fibonacci tools run locally
// and are exempt; the tutor tools forward to the OpenAI collaborator and the
// WolframAlpha tool queries an external API, so those require operator
// approval before execution.
package tools
