package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Validate decodes raw tool arguments and checks them against params.
//
// Unknown fields are rejected at every object level, required fields must be
// present and non-null, values must match their declared type and enum.
// Integers come back as int64 and numbers as float64. Every error wraps
// ErrInvalidArguments.
func Validate(params map[string]*schema.ParameterInfo, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, invalidf("arguments are not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, invalidf("unexpected data after arguments object")
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, invalidf("arguments must be a JSON object")
	}
	return validateObject("", params, obj)
}

func validateObject(path string, params map[string]*schema.ParameterInfo, obj map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(obj))
	for _, key := range keys {
		info, ok := params[key]
		if !ok {
			return nil, invalidf("unknown field %q", join(path, key))
		}
		value := obj[key]
		if value == nil {
			continue
		}
		normalized, err := validateValue(join(path, key), info, value)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}

	required := make([]string, 0)
	for key, info := range params {
		if info.Required {
			required = append(required, key)
		}
	}
	sort.Strings(required)
	for _, key := range required {
		if _, ok := out[key]; !ok {
			return nil, invalidf("missing required field %q", join(path, key))
		}
	}
	return out, nil
}

func validateValue(path string, info *schema.ParameterInfo, value any) (any, error) {
	switch info.Type {
	case schema.String:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(path, "string", value)
		}
		if len(info.Enum) > 0 && !contains(info.Enum, s) {
			return nil, invalidf("field %q must be one of %s, got %q", path, strings.Join(info.Enum, "/"), s)
		}
		return s, nil

	case schema.Integer:
		n, ok := value.(json.Number)
		if !ok {
			return nil, typeError(path, "integer", value)
		}
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
				return nil, typeError(path, "integer", value)
			}
			i = int64(f)
		}
		return i, nil

	case schema.Number:
		n, ok := value.(json.Number)
		if !ok {
			return nil, typeError(path, "number", value)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, typeError(path, "number", value)
		}
		return f, nil

	case schema.Boolean:
		b, ok := value.(bool)
		if !ok {
			return nil, typeError(path, "boolean", value)
		}
		return b, nil

	case schema.Object:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, typeError(path, "object", value)
		}
		if info.SubParams == nil {
			return nil, invalidf("field %q does not accept properties", path)
		}
		return validateObject(path, info.SubParams, obj)

	case schema.Array:
		items, ok := value.([]any)
		if !ok {
			return nil, typeError(path, "array", value)
		}
		if info.ElemInfo == nil {
			return items, nil
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				return nil, invalidf("field %q must not be null", elemPath)
			}
			v, err := validateValue(elemPath, info.ElemInfo, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	default:
		return nil, invalidf("field %q has unsupported type %q", path, info.Type)
	}
}

func typeError(path, want string, got any) error {
	return invalidf("field %q must be %s, got %s", path, want, jsonKind(got))
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Typed accessors over validated arguments.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string) (int64, bool) {
	i, ok := args[key].(int64)
	return i, ok
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func objectArg(args map[string]any, key string) (map[string]any, bool) {
	obj, ok := args[key].(map[string]any)
	return obj, ok
}
