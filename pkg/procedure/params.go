package procedure

import (
	"fmt"
)

// Param is a typed procedure argument that survives a JSON round trip.
// Exactly one field is set.
type Param struct {
	Bytes  []byte  `json:"bytes,omitempty"`
	String *string `json:"string,omitempty"`
	Int    *int64  `json:"int,omitempty"`
	Null   bool    `json:"null,omitempty"`
}

// ToParams converts positional arguments into Params.
func ToParams(args ...interface{}) ([]Param, error) {
	params := make([]Param, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			params[i] = Param{Null: true}
		case []byte:
			if v == nil {
				v = []byte{}
			}
			params[i] = Param{Bytes: v}
		case string:
			s := v
			params[i] = Param{String: &s}
		case int:
			n := int64(v)
			params[i] = Param{Int: &n}
		case int32:
			n := int64(v)
			params[i] = Param{Int: &n}
		case int64:
			n := v
			params[i] = Param{Int: &n}
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %T", i, arg)
		}
	}
	return params, nil
}

// FromParams converts Params back into positional arguments.
func FromParams(params []Param) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		switch {
		case p.String != nil:
			args[i] = *p.String
		case p.Int != nil:
			args[i] = *p.Int
		case p.Null:
			args[i] = nil
		default:
			if p.Bytes == nil {
				args[i] = []byte{}
			} else {
				args[i] = p.Bytes
			}
		}
	}
	return args
}

func argBytes(args []interface{}, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("argument %d: expected bytes, got %T", i, args[i])
	}
}

func argString(args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
}

func argInt(args []interface{}, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("argument %d: expected integer, got %T", i, args[i])
	}
}
