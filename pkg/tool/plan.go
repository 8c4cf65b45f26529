package tool

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	// FinalAnswerMarker prefixes a plan that ends the request cycle
	FinalAnswerMarker = "FINAL_ANSWER:"
	// FunctionCallMarker prefixes a plan that invokes a tool
	FunctionCallMarker = "FUNCTION_CALL:"
	// OpenURLPrefix marks a navigation result; the URL follows it
	OpenURLPrefix = "OPEN_URL:"
)

// FinalAnswer returns the answer text when plan carries the final answer
// marker.
func FinalAnswer(plan string) (string, bool) {
	trimmed := strings.TrimSpace(plan)
	if !strings.HasPrefix(trimmed, FinalAnswerMarker) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, FinalAnswerMarker)), true
}

// Call is a parsed tool invocation
type Call struct {
	Name string
	Args map[string]any
}

// ParseCall reads a plan of the form
//
//	FUNCTION_CALL: name|key=value|key=value
//	FUNCTION_CALL: name {"key": "value"}
//
// The marker is optional. Values are converted to the types declared in
// the schema returned by lookup; unknown parameters stay strings.
func ParseCall(plan string, lookup func(name string) *genai.Schema) (*Call, error) {
	body := plan
	if idx := strings.Index(body, FunctionCallMarker); idx >= 0 {
		body = body[idx+len(FunctionCallMarker):]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, goerr.New("empty tool invocation", goerr.V("plan", plan))
	}

	var call *Call
	var err error
	if brace := strings.IndexByte(body, '{'); brace >= 0 && !strings.Contains(body[:brace], "|") {
		call, err = parseJSONCall(body, brace)
	} else {
		call, err = parsePipeCall(body)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "malformed tool invocation", goerr.V("plan", plan))
	}

	var schema *genai.Schema
	if lookup != nil {
		schema = lookup(call.Name)
	}
	if err := coerceArgs(call.Args, schema); err != nil {
		return nil, goerr.Wrap(err, "invalid tool arguments",
			goerr.V("tool", call.Name),
			goerr.V("plan", plan))
	}
	return call, nil
}

func parsePipeCall(body string) (*Call, error) {
	// only the first line is the call; planners sometimes add commentary
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[:nl]
	}

	parts := strings.Split(body, "|")
	name := strings.TrimSpace(parts[0])
	if err := validateName(name); err != nil {
		return nil, err
	}

	args := map[string]any{}
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, goerr.New("parameter is not key=value", goerr.V("part", part))
		}
		args[key] = strings.TrimSpace(value)
	}
	return &Call{Name: name, Args: args}, nil
}

func parseJSONCall(body string, brace int) (*Call, error) {
	name := strings.TrimSpace(body[:brace])
	if err := validateName(name); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(body[brace:]))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, goerr.Wrap(err, "failed to decode arguments")
	}
	if args == nil {
		args = map[string]any{}
	}
	return &Call{Name: name, Args: args}, nil
}

func validateName(name string) error {
	if name == "" {
		return goerr.New("missing tool name")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return goerr.New("tool name contains whitespace", goerr.V("name", name))
	}
	return nil
}

func coerceArgs(args map[string]any, schema *genai.Schema) error {
	for key, value := range args {
		var prop *genai.Schema
		if schema != nil {
			prop = schema.Properties[key]
		}
		converted, err := coerce(value, prop)
		if err != nil {
			return goerr.Wrap(err, "failed to convert argument", goerr.V("key", key))
		}
		args[key] = converted
	}
	return nil
}

func coerce(value any, schema *genai.Schema) (any, error) {
	if num, ok := value.(json.Number); ok {
		if schema != nil && schema.Type == genai.TypeInteger {
			if i, err := num.Int64(); err == nil {
				return i, nil
			}
		}
		if schema != nil && schema.Type == genai.TypeString {
			return num.String(), nil
		}
		return num.Float64()
	}

	switch v := value.(type) {
	case []any:
		var items *genai.Schema
		if schema != nil {
			items = schema.Items
		}
		for i := range v {
			c, err := coerce(v[i], items)
			if err != nil {
				return nil, err
			}
			v[i] = c
		}
		return v, nil
	case map[string]any:
		return v, coerceArgs(v, schema)
	}

	s, ok := value.(string)
	if !ok || schema == nil {
		return value, nil
	}

	switch schema.Type {
	case genai.TypeInteger:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != float64(int64(f)) {
			return nil, goerr.New("not an integer", goerr.V("value", s))
		}
		return int64(f), nil

	case genai.TypeNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, goerr.Wrap(err, "not a number", goerr.V("value", s))
		}
		return f, nil

	case genai.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, goerr.Wrap(err, "not a boolean", goerr.V("value", s))
		}
		return b, nil

	case genai.TypeArray:
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			return decodeJSON(s)
		}
		var items []any
		for _, item := range strings.Split(s, ",") {
			v, err := coerce(strings.TrimSpace(item), schema.Items)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case genai.TypeObject:
		return decodeJSON(s)
	}

	return s, nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, goerr.Wrap(err, "invalid json value", goerr.V("value", s))
	}
	return v, nil
}
