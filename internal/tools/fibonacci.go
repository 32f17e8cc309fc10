// ABOUTME: Builtin Fibonacci tools, exempt from approval.
// ABOUTME: getFibonacci returns the nth value; fibonacciSequence the first count values.

package tools

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// fibonacci computes the nth Fibonacci number iteratively. big.Int keeps
// large positions exact.
func fibonacci(n int) *big.Int {
	a := big.NewInt(0)
	b := big.NewInt(1)
	for i := 0; i < n; i++ {
		a.Add(a, b)
		a, b = b, a
	}
	return a
}

// NewGetFibonacciTool returns the nth-Fibonacci-number tool.
func NewGetFibonacciTool() *Tool {
	return &Tool{
		Name:        "getFibonacci",
		Description: "Calculate the nth Fibonacci number",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"n": {
					Type:        "integer",
					Description: "The position in the Fibonacci sequence",
					Minimum:     floatPtr(0),
				},
			},
			Required:             []string{"n"},
			AdditionalProperties: boolPtr(false),
		},
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			n := int(args["n"].(float64))
			return TextResult(fmt.Sprintf("The %dth Fibonacci number is %s.", n, fibonacci(n))), nil
		},
	}
}

// NewFibonacciSequenceTool returns the Fibonacci-sequence tool.
func NewFibonacciSequenceTool() *Tool {
	return &Tool{
		Name:        "fibonacciSequence",
		Description: "Get a sequence of Fibonacci numbers up to n",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"count": {
					Type:        "integer",
					Description: "Number of Fibonacci numbers to generate",
					Minimum:     floatPtr(1),
					Maximum:     floatPtr(50),
				},
			},
			Required:             []string{"count"},
			AdditionalProperties: boolPtr(false),
		},
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			count := int(args["count"].(float64))
			values := make([]string, count)
			for i := 0; i < count; i++ {
				values[i] = fibonacci(i).String()
			}
			return TextResult(fmt.Sprintf("Fibonacci sequence (%d numbers): %s",
				count, strings.Join(values, ", "))), nil
		},
	}
}
