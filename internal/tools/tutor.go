// ABOUTME: Math-tutor tools backed by the OpenAI collaborator.
// ABOUTME: Each forwards to a single function-calling request and relays the call payload.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// FunctionCaller issues one function-calling request against the
// collaborator and returns the produced call arguments.
type FunctionCaller interface {
	FunctionCall(ctx context.Context, fn openai.Tool, messages []openai.ChatCompletionMessage) (json.RawMessage, error)
}

const tutorSystemPrompt = "You are a helpful assistant that always returns exactly one function call payload for math operations."

// stepSchema is the per-step object shared by the solution-shaped functions.
func stepSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"mathjs": {
				Type:        "string",
				Description: "A MathJS-compatible expression (using symbolic variables only).",
			},
			"latex": {
				Type:        "string",
				Description: "LaTeX representation of that symbolic expression.",
			},
			"step_number": {
				Type:        "integer",
				Description: "Index of the step in the overall solution.",
			},
			"description": {
				Type:        "string",
				Description: "Plain-language explanation of what happens in this step (no numeric substitution).",
			},
		},
		Required:             []string{"mathjs", "latex", "step_number", "description"},
		AdditionalProperties: boolPtr(false),
	}
}

// functionDef builds the collaborator-side function definition from a schema.
func functionDef(name, description string, params *Schema) openai.Tool {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("marshaling %s parameters: %v", name, err))
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(raw),
		},
	}
}

func solveProblemFunction() openai.Tool {
	return functionDef("solve_problem",
		"Returns the full solution process for a given question (text or image). Includes logical reasoning with LaTeX (no numeric substitution) and a list of steps formatted for MathJS (with LaTeX, step count, and description).",
		&Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"process": {
					Type:        "string",
					Description: "Natural-language explanation of the solution's logic, interwoven with LaTeX expressions (without numeric values).",
				},
				"steps": {
					Type:        "array",
					Description: "Sequence of step objects for MathJS, each containing a MathJS expression, its LaTeX form, step number, and a plain-language description.",
					Items:       stepSchema(),
				},
			},
			Required:             []string{"process", "steps"},
			AdditionalProperties: boolPtr(false),
		})
}

func generateProblemsFunction() openai.Tool {
	return functionDef("generate_problems",
		"Generate a list of new math problems based on a reference question or topic. Returns an array where each entry has difficulty, topic, and the problem statement in LaTeX.",
		&Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"topic": {
					Type:        "string",
					Description: "High-level topic (e.g., 'integration by parts').",
				},
				"reference_question": {
					Type:        "string",
					Description: "A sample problem (in plain text or LaTeX) to base new problems on. If provided, this takes priority over topic.",
				},
				"num_questions": {
					Type:        "integer",
					Description: "Number of distinct problems to generate.",
				},
			},
			Required:             []string{"topic", "reference_question", "num_questions"},
			AdditionalProperties: boolPtr(false),
		})
}

func validateSolutionFunction() openai.Tool {
	return functionDef("validate_solution",
		"Returns the validation outcome for a student's solution. Includes the logical process (mix of words and LaTeX, without numeric substitution), an array indicating where the student went wrong, and a list of steps formatted for MathJS (with LaTeX, step count, and description).",
		&Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"process": {
					Type:        "string",
					Description: "Natural-language description of the entire solution's logic, interspersed with LaTeX expressions (no actual numeric values).",
				},
				"where_wrong": {
					Type:        "array",
					Description: "List of strings describing each incorrect step or misconception.",
					Items:       &Schema{Type: "string"},
				},
				"steps": {
					Type:        "array",
					Description: "Sequence of step objects, each containing a MathJS-compatible expression, its LaTeX form, step number, and a brief description.",
					Items:       stepSchema(),
				},
			},
			Required:             []string{"process", "where_wrong", "steps"},
			AdditionalProperties: boolPtr(false),
		})
}

// userMessage builds a multi-part user message with an optional leading image.
func userMessage(imageURL string, texts ...string) openai.ChatCompletionMessage {
	var parts []openai.ChatMessagePart
	if imageURL != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
		})
	}
	for _, text := range texts {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: text,
		})
	}
	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

func systemMessage() openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: tutorSystemPrompt,
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// NewSolveProblemTool returns the solve_problem tool. It spends collaborator
// tokens, so it requires approval.
func NewSolveProblemTool(caller FunctionCaller) *Tool {
	return &Tool{
		Name:        "solve_problem",
		Description: "Solve a math problem and return the full solution process with MathJS-formatted steps",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"question": {
					Type:        "string",
					Description: "The problem to solve, in plain text or LaTeX",
				},
				"image_url": {
					Type:        "string",
					Description: "Optional URL of an image showing the problem",
				},
			},
			Required:             []string{"question"},
			AdditionalProperties: boolPtr(false),
		},
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			question := stringArg(args, "question")
			messages := []openai.ChatCompletionMessage{
				systemMessage(),
				userMessage(stringArg(args, "image_url"),
					fmt.Sprintf("Solve the following problem and return the detailed process (logic and LaTeX) plus steps.\nQuestion:\n%s", question)),
			}

			payload, err := caller.FunctionCall(ctx, solveProblemFunction(), messages)
			if err != nil {
				return nil, fmt.Errorf("solve_problem: %w", err)
			}
			return TextResult(string(payload)), nil
		},
	}
}

// NewGenerateProblemsTool returns the generate_problems tool. Requires
// approval.
func NewGenerateProblemsTool(caller FunctionCaller) *Tool {
	return &Tool{
		Name:        "generate_problems",
		Description: "Generate new math problems based on a topic or a reference question",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"topic": {
					Type:        "string",
					Description: "High-level topic to generate problems for",
				},
				"reference_question": {
					Type:        "string",
					Description: "A sample problem to base new problems on; takes priority over topic",
				},
				"num_questions": {
					Type:        "integer",
					Description: "Number of distinct problems to generate",
					Minimum:     floatPtr(1),
					Maximum:     floatPtr(5),
				},
			},
			AdditionalProperties: boolPtr(false),
		},
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			topic := strings.TrimSpace(stringArg(args, "topic"))
			reference := strings.TrimSpace(stringArg(args, "reference_question"))
			if topic == "" && reference == "" {
				return nil, fmt.Errorf("at least one of 'topic' or 'reference_question' must be provided")
			}

			count := 1
			if n, ok := args["num_questions"].(float64); ok {
				count = int(n)
			}

			texts := []string{fmt.Sprintf("Generate %d new math problems.", count)}
			if reference != "" {
				texts = append(texts, fmt.Sprintf("Reference question:\n%s", reference))
			}
			if topic != "" {
				texts = append(texts, fmt.Sprintf("Topic:\n%s", topic))
			}

			messages := []openai.ChatCompletionMessage{
				systemMessage(),
				userMessage("", texts...),
			}

			payload, err := caller.FunctionCall(ctx, generateProblemsFunction(), messages)
			if err != nil {
				return nil, fmt.Errorf("generate_problems: %w", err)
			}
			return TextResult(string(payload)), nil
		},
	}
}

// NewValidateSolutionTool returns the validate_solution tool. Requires
// approval.
func NewValidateSolutionTool(caller FunctionCaller) *Tool {
	return &Tool{
		Name:        "validate_solution",
		Description: "Validate a student's solution image against a question and report where it goes wrong",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"question": {
					Type:        "string",
					Description: "The question the solution answers",
				},
				"image_url": {
					Type:        "string",
					Description: "URL of an image of the student's worked solution",
				},
			},
			Required:             []string{"question", "image_url"},
			AdditionalProperties: boolPtr(false),
		},
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			question := stringArg(args, "question")
			messages := []openai.ChatCompletionMessage{
				systemMessage(),
				userMessage(stringArg(args, "image_url"),
					fmt.Sprintf("Validate the following solution for question:\n%s", question)),
			}

			payload, err := caller.FunctionCall(ctx, validateSolutionFunction(), messages)
			if err != nil {
				return nil, fmt.Errorf("validate_solution: %w", err)
			}
			return TextResult(string(payload)), nil
		},
	}
}
