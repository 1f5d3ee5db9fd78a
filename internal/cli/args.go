// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Shared argument parsing for bridgechat subcommands.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ArgParser splits subcommand arguments into flags and positionals.
//
// Accepted forms:
//
//	--flag value   -f value   --flag=value   --flag
//
// A flag followed by a non-flag argument takes it as its value unless the
// flag was declared boolean, so "export 2 --open" and "export --open 2"
// both leave "2" positional.
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolNames lists flags that never take a value.
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	isBool := make(map[string]bool, len(boolNames))
	for _, n := range boolNames {
		isBool[strings.TrimLeft(n, "-")] = true
	}

	p := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0, len(raw)),
		raw:        raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if b, err := strconv.ParseBool(v); err == nil && (isBool[k] || v == "true" || v == "false") {
				p.boolFlags[k] = b
			} else {
				p.flags[k] = v
			}
			continue
		}

		if !isBool[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}

	if len(p.positional) > 0 {
		p.subcommand = p.positional[0]
	}
	return p
}

// Subcommand returns the first positional argument, lowercased.
func (p *ArgParser) Subcommand() string {
	return strings.ToLower(p.subcommand)
}

// Flag returns the value of a string flag, or "".
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[strings.TrimLeft(n, "-")]; ok {
			return v
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or def.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// FlagInt parses a flag as an integer.
func (p *ArgParser) FlagInt(name string) (int, error) {
	v := p.Flag(name)
	if v == "" {
		return 0, fmt.Errorf("flag --%s not set", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &UsageError{Field: "--" + name, Value: v, Reason: "must be an integer"}
	}
	return n, nil
}

// BoolFlag reports whether any of names was given as a switch.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.boolFlags[strings.TrimLeft(n, "-")] {
			return true
		}
	}
	return false
}

// HasFlag reports whether name was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, s := p.flags[name]
	_, b := p.boolFlags[name]
	return s || b
}

// Positional returns the positional argument at index, or "". Index 0 is
// the subcommand.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns positionals from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return nil
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positionals.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Raw returns the arguments as given.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// JoinPositional joins positionals from index into one string, for
// multi-word questions.
func (p *ArgParser) JoinPositional(index int) string {
	return strings.Join(p.PositionalFrom(index), " ")
}
