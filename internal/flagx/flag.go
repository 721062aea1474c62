// Package flagx contains small helpers around the standard flag package:
// argument filtering so several flag sets can share os.Args, and a list
// value for settings such as trusted proxy ranges.
package flagx

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

// FilterArgs returns the subset of args that belong to allowedFlags, with
// their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      -config=conf.json
//
// A double-dash spelling (--config) matches the single-dash entry in
// allowedFlags and is rewritten to it, since the flag package treats both
// the same way.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, value, hasValue := strings.Cut(arg, "=")
		name = normalize(name, allowed)
		if _, ok := allowed[name]; !ok {
			continue
		}

		if hasValue {
			filtered = append(filtered, name+"="+value)
			continue
		}

		filtered = append(filtered, name)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// normalize maps "--name" to "-name" when only the single-dash form is
// registered.
func normalize(name string, allowed map[string]struct{}) string {
	if _, ok := allowed[name]; ok {
		return name
	}
	if strings.HasPrefix(name, "--") {
		return name[1:]
	}
	return name
}

// JsonConfigFlags extracts the config file path provided via the -c or
// -config flags, ignoring every other argument.
//
// If neither flag is present, an empty string is returned.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}

// StringList is a flag.Value holding a list of strings. Each Set call
// accepts either a JSON array or a comma-separated list and appends the
// non-empty, trimmed items.
type StringList []string

func (l *StringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *StringList) Set(value string) error {
	items, err := ParseList(value)
	if err != nil {
		return err
	}
	*l = append(*l, items...)
	return nil
}

// ParseList accepts `["a","b"]` or `a, b` and returns the trimmed,
// non-empty items.
func ParseList(value string) ([]string, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		return []string{}, nil
	}

	var raw []string
	if strings.HasPrefix(candidate, "[") {
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
			return nil, fmt.Errorf("unable to parse list %q: %w", candidate, err)
		}
	} else {
		raw = strings.Split(candidate, ",")
	}

	items := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
