// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials kept one per file in a directory such
// as .secrets/. The file name is the secret's name and the trimmed file
// contents are its value.
//
// Known names: anthropic-api-key, openai-api-key, ctgov-user-agent. Each
// falls back to an environment variable when no file provides it.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Names of the secrets the pipeline reads.
const (
	AnthropicAPIKey = "anthropic-api-key"
	OpenAIAPIKey    = "openai-api-key"
	CTGovUserAgent  = "ctgov-user-agent"
)

// envFallback maps secret names to the environment variable consulted when
// neither a flag nor a file supplies the value.
var envFallback = map[string]string{
	AnthropicAPIKey: "ANTHROPIC_API_KEY",
	OpenAIAPIKey:    "OPENAI_API_KEY",
	CTGovUserAgent:  "CTGOV_USER_AGENT",
}

// Set maps secret names to values. A nil Set is empty.
type Set map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty Set. Empty files are ignored; files that cannot be read
// are logged and skipped.
func Load(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	set := make(Set, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable secret", "name", name, "err", err)
			continue
		}
		if info, err := e.Info(); err == nil && info.Mode().Perm()&0o077 != 0 {
			slog.Debug("secret file is readable by other users", "path", path, "mode", info.Mode().Perm())
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			set[name] = v
		}
	}
	return set, nil
}

// Names returns the loaded secret names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the first non-empty value among explicit, the named
// secret and the secret's environment variable.
func (s Set) Resolve(explicit, name string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := s[name]; v != "" {
		return v
	}
	if env, ok := envFallback[name]; ok {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}
