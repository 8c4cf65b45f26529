// Package calc offers arithmetic helpers the planner can delegate to.
package calc

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type operation struct {
	description string
	params      map[string]*genai.Schema
	required    []string
	run         func(args map[string]any) (any, error)
}

var (
	intA   = map[string]*genai.Schema{"a": {Type: genai.TypeInteger}}
	intAB  = map[string]*genai.Schema{"a": {Type: genai.TypeInteger}, "b": {Type: genai.TypeInteger}}
	floatA = map[string]*genai.Schema{"a": {Type: genai.TypeNumber}}
)

var operations = map[string]operation{
	"add": {"Add two integers", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) { return a + b, nil })},
	"subtract": {"Subtract b from a", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) { return a - b, nil })},
	"multiply": {"Multiply two integers", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) { return a * b, nil })},
	"divide": {"Divide a by b", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) {
		if b == 0 {
			return nil, goerr.New("division by zero")
		}
		return float64(a) / float64(b), nil
	})},
	"remainder": {"Remainder of a divided by b", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) {
		if b == 0 {
			return nil, goerr.New("division by zero")
		}
		return a % b, nil
	})},
	"power": {"a raised to the power of b", intAB, []string{"a", "b"}, binary(func(a, b int64) (any, error) {
		return math.Pow(float64(a), float64(b)), nil
	})},
	"sqrt": {"Square root of a", floatA, []string{"a"}, unaryFloat(func(a float64) (any, error) {
		if a < 0 {
			return nil, goerr.New("square root of a negative number", goerr.V("a", a))
		}
		return math.Sqrt(a), nil
	})},
	"cbrt": {"Cube root of a", intA, []string{"a"}, unaryFloat(func(a float64) (any, error) { return math.Cbrt(a), nil })},
	"log": {"Natural logarithm of a", intA, []string{"a"}, unaryFloat(func(a float64) (any, error) {
		if a <= 0 {
			return nil, goerr.New("logarithm of a non-positive number", goerr.V("a", a))
		}
		return math.Log(a), nil
	})},
	"sin": {"Sine of a (radians)", intA, []string{"a"}, unaryFloat(func(a float64) (any, error) { return math.Sin(a), nil })},
	"cos": {"Cosine of a (radians)", intA, []string{"a"}, unaryFloat(func(a float64) (any, error) { return math.Cos(a), nil })},
	"tan": {"Tangent of a (radians)", intA, []string{"a"}, unaryFloat(func(a float64) (any, error) { return math.Tan(a), nil })},
	"factorial": {"Factorial of a (0 <= a <= 20)", intA, []string{"a"}, func(args map[string]any) (any, error) {
		a, err := intArg(args, "a")
		if err != nil {
			return nil, err
		}
		if a < 0 || a > 20 {
			return nil, goerr.New("factorial argument out of range", goerr.V("a", a))
		}
		result := int64(1)
		for i := int64(2); i <= a; i++ {
			result *= i
		}
		return result, nil
	}},
	"fibonacci_numbers": {"First n Fibonacci numbers", map[string]*genai.Schema{"n": {Type: genai.TypeInteger}}, []string{"n"}, func(args map[string]any) (any, error) {
		n, err := intArg(args, "n")
		if err != nil {
			return nil, err
		}
		if n > 92 {
			return nil, goerr.New("n is too large", goerr.V("n", n))
		}
		seq := []int64{}
		for i := int64(0); i < n; i++ {
			if i < 2 {
				seq = append(seq, i)
				continue
			}
			seq = append(seq, seq[i-1]+seq[i-2])
		}
		return seq, nil
	}},
	"strings_to_chars_to_int": {"ASCII codes of every character of string", map[string]*genai.Schema{"string": {Type: genai.TypeString}}, []string{"string"}, func(args map[string]any) (any, error) {
		s, ok := args["string"].(string)
		if !ok {
			return nil, goerr.New("string is required")
		}
		codes := make([]int, 0, len(s))
		for _, r := range s {
			codes = append(codes, int(r))
		}
		return codes, nil
	}},
	"int_list_to_exponential_sum": {"Sum of e raised to each integer", map[string]*genai.Schema{"int_list": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeInteger}}}, []string{"int_list"}, func(args map[string]any) (any, error) {
		list, ok := args["int_list"].([]any)
		if !ok {
			return nil, goerr.New("int_list must be an array")
		}
		var sum float64
		for _, v := range list {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			sum += math.Exp(f)
		}
		return sum, nil
	}},
}

// order fixes the catalog order of the operations
var order = []string{
	"add", "subtract", "multiply", "divide", "remainder", "power", "sqrt", "cbrt",
	"log", "sin", "cos", "tan", "factorial", "fibonacci_numbers",
	"strings_to_chars_to_int", "int_list_to_exponential_sum",
}

type calc struct {
	enabled bool
}

func New() *calc {
	return &calc{enabled: true}
}

func (x *calc) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "enable-calc",
			Usage:       "Enable arithmetic tools",
			Value:       true,
			Sources:     cli.EnvVars("SEEKER_ENABLE_CALC"),
			Destination: &x.enabled,
		},
	}
}

func (x *calc) Init(_ context.Context, _ *tool.Client) (bool, error) {
	return x.enabled, nil
}

func (x *calc) Prompt(_ context.Context) string {
	return ""
}

func (x *calc) Spec() *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(order))
	for _, name := range order {
		op := operations[name]
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        name,
			Description: op.description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: op.params,
				Required:   op.required,
			},
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func (x *calc) Execute(_ context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	op, ok := operations[fc.Name]
	if !ok {
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}

	result, err := op.run(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "calculation failed", goerr.V("name", fc.Name), goerr.V("args", fc.Args))
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": result},
	}, nil
}

func binary(fn func(a, b int64) (any, error)) func(map[string]any) (any, error) {
	return func(args map[string]any) (any, error) {
		a, err := intArg(args, "a")
		if err != nil {
			return nil, err
		}
		b, err := intArg(args, "b")
		if err != nil {
			return nil, err
		}
		return fn(a, b)
	}
}

func unaryFloat(fn func(a float64) (any, error)) func(map[string]any) (any, error) {
	return func(args map[string]any) (any, error) {
		v, ok := args["a"]
		if !ok {
			return nil, goerr.New("missing argument", goerr.V("key", "a"))
		}
		a, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return fn(a)
	}
}

func intArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, goerr.New("missing argument", goerr.V("key", key))
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid argument", goerr.V("key", key))
	}
	if f != math.Trunc(f) {
		return 0, goerr.New("argument is not an integer", goerr.V("key", key), goerr.V("value", v))
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, goerr.New("not a number", goerr.V("value", v))
}
