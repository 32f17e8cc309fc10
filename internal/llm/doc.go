// Package llm provides the OpenAI collaborator client behind the tutor
// tools. Each call attaches exactly one function definition and returns the
// arguments of the function call the model produces.
package llm
