package main

import (
	"fmt"
	"strings"

	"github.com/omarluq/vk-async/internal/api"
)

// parseParams turns key=value arguments into call parameters.
// Repeating a key joins the values with commas.
func parseParams(args []string) (api.Params, error) {
	params := make(api.Params, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", arg)
		}
		if prev, exists := params[key]; exists {
			params[key] = fmt.Sprintf("%v,%s", prev, value)
			continue
		}
		params[key] = value
	}
	return params, nil
}
