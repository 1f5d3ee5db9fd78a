// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration command handler.
//
// Examples:
//   bridgechat config show
//   bridgechat config set webhook.base_url https://n8n.example.com/webhook
//   bridgechat config set webhook.emergency_mode true
//   bridgechat config get queue.max_concurrent

package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/bridgechat/internal/config"
)

// HandleConfig routes config subcommands. It never wires the chat core.
func HandleConfig(args Args) error {
	cfg, path, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, warningStyle.Render(fmt.Sprintf("Warning: %v (showing defaults)", err)))
	}

	switch sub := args.Sub.Subcommand(); sub {
	case "", "show":
		return configShow(cfg, path, args.JSON)
	case "get":
		key := args.Sub.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "bridgechat config get webhook.base_url")
		}
		v, err := cfg.Get(key)
		if err != nil {
			return &UsageError{Field: "key", Value: key, Reason: err.Error()}
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]any{"key": key, "value": v}).Print()
		}
		fmt.Fprintln(stdout, v)
		return nil
	case "set":
		key, value := args.Sub.Positional(1), args.Sub.JoinPositional(2)
		if key == "" || args.Sub.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "bridgechat config set user.name \"Chief Engineer\"")
		}
		if err != nil && path != "" {
			// Saving now would replace the broken file with defaults.
			return fmt.Errorf("fix %s before changing settings: %w", path, err)
		}
		return configSet(cfg, path, key, value)
	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(stdout, k)
		}
		return nil
	case "path":
		if path == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, filepath.Join(dir, "config.toml")+" "+dimStyle.Render("(not created yet)"))
			return nil
		}
		fmt.Fprintln(stdout, path)
		return nil
	default:
		return &UsageError{
			Field:   "config subcommand",
			Value:   sub,
			Reason:  "expected show, get, set, keys or path",
			Example: "bridgechat config show",
		}
	}
}

func configShow(cfg *config.Config, path string, jsonMode bool) error {
	if jsonMode {
		return NewJSONResponse("config show", cfg).Print()
	}
	source := path
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintln(stdout, titleStyle.Render("bridgechat configuration"))
	fmt.Fprintln(stdout, labelled("Source", source))
	fmt.Fprintln(stdout, labelled("Webhook", cfg.Webhook.BaseURL+cfg.Webhook.ChatEndpoint))
	fmt.Fprintln(stdout, labelled("Emergency mode", fmt.Sprint(cfg.Webhook.EmergencyMode)))
	fmt.Fprintln(stdout, labelled("User", fmt.Sprintf("%s (%s)", cfg.User.Name, cfg.User.ID)))
	fmt.Fprintln(stdout, separator(60))
	fmt.Fprint(stdout, cfg.String())
	return nil
}

// configSet changes one key and saves. JSON and YAML files are left alone;
// the change goes to a config.toml beside them, which takes precedence.
func configSet(cfg *config.Config, path, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Field: "key", Value: key, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	target := path
	if target == "" || !strings.EqualFold(filepath.Ext(target), ".toml") {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		target = filepath.Join(dir, "config.toml")
		if path != "" {
			fmt.Fprintln(stderr, warningStyle.Render("Note: writing "+target+", which overrides "+path))
		}
	}
	if err := config.Save(cfg, target); err != nil {
		return err
	}

	v, _ := cfg.Get(key)
	fmt.Fprintln(stdout, successStyle.Render(fmt.Sprintf("%s = %v", key, v)))
	fmt.Fprintln(stdout, dimStyle.Render("Saved to "+target))
	return nil
}
