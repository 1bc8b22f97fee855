package plugins

import (
	"context"
	"errors"
	"math"
	"strconv"
)

const calcLimit = 1e100

var (
	ErrTooLarge = errors.New("numbers too large for calculation")
	ErrOverflow = errors.New("result too large")
)

type Calculator struct{}

func (Calculator) Name() string { return "calculator" }

func (Calculator) Tools() []Tool {
	two := func(name, desc string, fn func(a, b float64) float64) Tool {
		return Tool{
			Tool: llmTool(name, desc, []string{"a", "b"}, map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			}),
			Handler: binary("a", "b", fn),
		}
	}
	return []Tool{
		two("add", "Add two numbers a and b.", func(a, b float64) float64 { return a + b }),
		two("subtract", "Subtract b from a.", func(a, b float64) float64 { return a - b }),
		two("multiply", "Multiply a by b.", func(a, b float64) float64 { return a * b }),
		two("divide", "Divide a by b. Division by zero is undefined.", func(a, b float64) float64 {
			if b == 0 {
				return math.NaN()
			}
			return a / b
		}),
		{
			Tool: llmTool("square", "Square a number x.", []string{"x"}, map[string]any{
				"x": map[string]any{"type": "number"},
			}),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				x, err := calcArg(args, "x")
				if err != nil {
					return "", err
				}
				return formatResult(x * x)
			},
		},
		{
			Tool: llmTool("percentage", "Calculate percentage of number.", []string{"number", "percentage"}, map[string]any{
				"number":     map[string]any{"type": "number"},
				"percentage": map[string]any{"type": "number"},
			}),
			Handler: binary("number", "percentage", func(n, p float64) float64 { return n * p / 100 }),
		},
		{
			Tool: llmTool("power", "Raise base to exponent.", []string{"base", "exponent"}, map[string]any{
				"base":     map[string]any{"type": "number"},
				"exponent": map[string]any{"type": "number"},
			}),
			Handler: binary("base", "exponent", math.Pow),
		},
	}
}

func binary(ka, kb string, fn func(a, b float64) float64) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		a, err := calcArg(args, ka)
		if err != nil {
			return "", err
		}
		b, err := calcArg(args, kb)
		if err != nil {
			return "", err
		}
		return formatResult(fn(a, b))
	}
}

func calcArg(args map[string]any, key string) (float64, error) {
	v, err := requiredNumber(args, key)
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > calcLimit {
		return 0, ErrTooLarge
	}
	return v, nil
}

func formatResult(v float64) (string, error) {
	switch {
	case math.IsNaN(v):
		return "undefined", nil
	case math.IsInf(v, 0):
		return "", ErrOverflow
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}
