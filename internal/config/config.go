// Package config loads process configuration for the coordinator, the parties and the client.
//
// Values are layered: built-in defaults, then an optional YAML file, then environment
// variables named as in the original deployment (PORT, PARTY_HOSTS, ...).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// load fills out from defaults, the YAML file at path and env, in that order.
func load(path string, defaults map[string]any, env map[string]string, lookup LookupFunc, out any) error {
	raw := make(map[string]any, len(defaults))
	for k, v := range defaults {
		raw[k] = v
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		var fromFile map[string]any
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for k, v := range fromFile {
			raw[strings.ToLower(k)] = v
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	for name, key := range env {
		val, ok := lookup(name)
		if !ok {
			continue
		}
		raw[key] = envValue(val)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envValue accepts JSON lists ("[8006, 8007]") as well as scalars and comma lists.
func envValue(val string) any {
	trimmed := strings.TrimSpace(val)
	if strings.HasPrefix(trimmed, "[") {
		var list []any
		if err := yaml.Unmarshal([]byte(trimmed), &list); err == nil {
			return list
		}
	}
	return val
}

// secondsHook decodes durations. Bare numbers are seconds, as in the original deployment.
func secondsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Duration(0), nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	}
	return data, nil
}
