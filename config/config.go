// Package config loads a protocol.Profile from defaults, an optional JSON or
// YAML profile file, a .env file, RIGSIM_* environment variables and bound
// command line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nobonobo/rigsim/protocol"
)

// EnvPrefix ...
const EnvPrefix = "RIGSIM"

// New returns a viper instance seeded with the default profile. Keys follow
// the JSON field names, nested with dots: "driver.dt", "world.gravity".
// envFile is loaded first when it exists; variables already set win.
func New(envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", envFile, err)
		}
	}
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := flatten(protocol.DefaultProfile())
	if err != nil {
		return nil, err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v, nil
}

// ReadFile merges a profile file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// Decode resolves every key and validates the result.
func Decode(v *viper.Viper) (protocol.Profile, error) {
	defaults, err := flatten(protocol.DefaultProfile())
	if err != nil {
		return protocol.Profile{}, err
	}
	tree := map[string]interface{}{}
	for key, def := range defaults {
		val, err := resolve(v, key, def)
		if err != nil {
			return protocol.Profile{}, err
		}
		insert(tree, strings.Split(key, "."), val)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return protocol.Profile{}, fmt.Errorf("config: %w", err)
	}
	var p protocol.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Profile{}, fmt.Errorf("config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return protocol.Profile{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// Load is New, ReadFile and Decode in one call.
func Load(envFile, path string) (protocol.Profile, error) {
	v, err := New(envFile)
	if err != nil {
		return protocol.Profile{}, err
	}
	if err := ReadFile(v, path); err != nil {
		return protocol.Profile{}, err
	}
	return Decode(v)
}

// resolve reads key with the type of its default, so that environment
// strings decode like file values.
func resolve(v *viper.Viper, key string, def interface{}) (interface{}, error) {
	switch def.(type) {
	case float64:
		return v.GetFloat64(key), nil
	case bool:
		return v.GetBool(key), nil
	case string:
		return v.GetString(key), nil
	case []interface{}:
		switch val := v.Get(key).(type) {
		case string:
			return parseList(key, val)
		default:
			return val, nil
		}
	}
	return v.Get(key), nil
}

func parseList(key, s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
		out = append(out, x)
	}
	return out, nil
}

// flatten maps a JSON-encodable value to dotted leaf keys.
func flatten(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	out := map[string]interface{}{}
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, val := range m {
			if sub, ok := val.(map[string]interface{}); ok {
				walk(prefix+k+".", sub)
				continue
			}
			out[prefix+k] = val
		}
	}
	walk("", tree)
	return out, nil
}

func insert(tree map[string]interface{}, path []string, val interface{}) {
	for _, k := range path[:len(path)-1] {
		sub, ok := tree[k].(map[string]interface{})
		if !ok {
			sub = map[string]interface{}{}
			tree[k] = sub
		}
		tree = sub
	}
	tree[path[len(path)-1]] = val
}
