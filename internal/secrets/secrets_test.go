// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		dirs  []string
		want  Set
	}{
		{
			name: "provider keys and user agent",
			files: map[string]string{
				OpenAIAPIKey:    "sk-proj-4f2a\n",
				AnthropicAPIKey: "\tsk-ant-api03-77c1 ",
				CTGovUserAgent:  "oncology-lab-pipeline/1.3 (data@lab.example)\n",
			},
			want: Set{
				OpenAIAPIKey:    "sk-proj-4f2a",
				AnthropicAPIKey: "sk-ant-api03-77c1",
				CTGovUserAgent:  "oncology-lab-pipeline/1.3 (data@lab.example)",
			},
		},
		{
			name: "blank files, hidden files and folders are ignored",
			files: map[string]string{
				OpenAIAPIKey:    "sk-live",
				AnthropicAPIKey: "  \n",
				".gitkeep":      "",
				".old-key":      "sk-revoked",
			},
			dirs: []string{"archive"},
			want: Set{OpenAIAPIKey: "sk-live"},
		},
		{
			name: "empty directory",
			want: Set{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			put(t, dir, tt.files)
			for _, d := range tt.dirs {
				require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o700))
			}
			got, err := Load(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), ".secrets"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadSkipsUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	dir := t.TempDir()
	put(t, dir, map[string]string{OpenAIAPIKey: "sk-ok"})
	locked := filepath.Join(dir, AnthropicAPIKey)
	require.NoError(t, os.WriteFile(locked, []byte("sk-ant"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o600) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Set{OpenAIAPIKey: "sk-ok"}, got)
}

func TestNames(t *testing.T) {
	s := Set{OpenAIAPIKey: "a", CTGovUserAgent: "b", AnthropicAPIKey: "c"}
	assert.Equal(t, []string{AnthropicAPIKey, CTGovUserAgent, OpenAIAPIKey}, s.Names())
	assert.Empty(t, Set(nil).Names())
}

func TestResolve(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CTGOV_USER_AGENT", "")

	loaded := Set{AnthropicAPIKey: "sk-ant-file", OpenAIAPIKey: "sk-file"}

	tests := []struct {
		name     string
		set      Set
		explicit string
		key      string
		want     string
	}{
		{"flag beats file", loaded, " sk-flag ", OpenAIAPIKey, "sk-flag"},
		{"file beats environment", loaded, "", OpenAIAPIKey, "sk-file"},
		{"environment when no file", Set{}, "", OpenAIAPIKey, "sk-env"},
		{"nil set falls back to environment", nil, "", OpenAIAPIKey, "sk-env"},
		{"unset everywhere", Set{}, "", AnthropicAPIKey, ""},
		{"no user agent configured", loaded, "", CTGovUserAgent, ""},
		{"name without environment fallback", Set{}, "", "pubmed-api-key", ""},
	}
	for _, tt := range tests {
		if got := tt.set.Resolve(tt.explicit, tt.key); got != tt.want {
			t.Errorf("%s: Resolve(%q, %q) = %q, want %q", tt.name, tt.explicit, tt.key, got, tt.want)
		}
	}
}
