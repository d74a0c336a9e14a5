package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// options holds "-name value" and "-name=value" subcommand options.
type options map[string]string

// parseOptions reads subcommand options. Every option takes a value
// and only the names in allowed are accepted.
func parseOptions(args []string, allowed ...string) (options, error) {
	opts := options{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if n, v, ok := strings.Cut(name, "="); ok {
			name, value, hasValue = n, v, true
		}
		if !slices.Contains(allowed, name) {
			return nil, fmt.Errorf("unknown option: -%s", name)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("option -%s needs a value", name)
			}
			i++
			value = args[i]
		}
		opts[name] = value
	}
	return opts, nil
}

// require returns the value of a mandatory option.
func (o options) require(name string) (string, error) {
	v := o[name]
	if v == "" {
		return "", fmt.Errorf("option -%s is required", name)
	}
	return v, nil
}

// id returns a mandatory positive integer option.
func (o options) id(name string) (int64, error) {
	v, err := o.require(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("option -%s: %q is not a valid id", name, v)
	}
	return n, nil
}

// ids parses an optional comma-separated id list.
func (o options) ids(name string) ([]int64, error) {
	v := o[name]
	if v == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("option -%s: %q is not a valid id", name, part)
		}
		out = append(out, n)
	}
	return out, nil
}

// get returns the option or def when unset.
func (o options) get(name, def string) string {
	if v, ok := o[name]; ok && v != "" {
		return v
	}
	return def
}
