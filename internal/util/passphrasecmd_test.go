// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// makeScript creates an executable script in a temp dir.
func makeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPassphraseCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     PassphraseCommand
		want    string
		wantErr string
	}{
		{
			name: "echo passphrase",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "echo.sh", "#!/bin/sh\necho mysecret\n"), "arg1"}},
			want: "mysecret",
		},
		{
			name: "arguments are passed",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "arg.sh", "#!/bin/sh\nprintf '%s' \"$1\"\n"), "from-arg"}},
			want: "from-arg",
		},
		{
			name: "strips exactly one trailing newline",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "nl.sh", "#!/bin/sh\nprintf 'secret\\n\\n'\n")}},
			want: "secret\n",
		},
		{
			name: "strips CRLF",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "crlf.sh", "#!/bin/sh\nprintf 'secret\\r\\n'\n")}},
			want: "secret",
		},
		{
			name: "preserves spaces",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "spaces.sh", "#!/bin/sh\nprintf '  secret  '\n")}},
			want: "  secret  ",
		},
		{
			name: "base64 prefix",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "b64.sh", "#!/bin/sh\nprintf 'base64:"+base64.StdEncoding.EncodeToString([]byte("decoded"))+"'\n")}},
			want: "decoded",
		},
		{
			name: "hex prefix",
			cmd:  PassphraseCommand{Argv: []string{makeScript(t, "hex.sh", "#!/bin/sh\nprintf 'hex:"+hex.EncodeToString([]byte("hexval"))+"'\n")}},
			want: "hexval",
		},
		{
			name: "declared env only",
			cmd: PassphraseCommand{
				Argv: []string{makeScript(t, "env.sh", "#!/bin/sh\nif [ -n \"$HOME\" ]; then exit 3; fi\nprintf '%s' \"$MY_SECRET\"\n")},
				Env:  map[string]string{"MY_SECRET": "fromenv"},
			},
			want: "fromenv",
		},
		{
			name:    "empty output",
			cmd:     PassphraseCommand{Argv: []string{makeScript(t, "empty.sh", "#!/bin/sh\n")}},
			wantErr: "empty output",
		},
		{
			name:    "non-zero exit",
			cmd:     PassphraseCommand{Argv: []string{makeScript(t, "fail.sh", "#!/bin/sh\nexit 1\n")}},
			wantErr: "command failed",
		},
		{
			name:    "NUL bytes",
			cmd:     PassphraseCommand{Argv: []string{makeScript(t, "nul.sh", "#!/bin/sh\nprintf 'pass\\0word'\n")}},
			wantErr: "NUL bytes",
		},
		{
			name:    "stdout over limit",
			cmd:     PassphraseCommand{Argv: []string{makeScript(t, "big.sh", "#!/bin/sh\nhead -c 9000 /dev/zero\n")}},
			wantErr: "stdout exceeded",
		},
		{
			name:    "invalid hex",
			cmd:     PassphraseCommand{Argv: []string{makeScript(t, "badhex.sh", "#!/bin/sh\nprintf 'hex:zz'\n")}},
			wantErr: "invalid hex",
		},
		{
			name:    "relative path",
			cmd:     PassphraseCommand{Argv: []string{"relative/path"}},
			wantErr: "absolute path",
		},
		{
			name:    "missing binary",
			cmd:     PassphraseCommand{Argv: []string{"/nonexistent/binary"}},
			wantErr: "passphrase_command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, err := tt.cmd.Passphrase(context.Background())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Passphrase() error = %v, want %q", err, tt.wantErr)
				}
				if !errors.Is(err, ErrPassphraseCommand) {
					t.Errorf("error %v does not wrap ErrPassphraseCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Passphrase() error: %v", err)
			}
			defer pass.Destroy()
			if got := string(pass.Bytes()); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPassphraseCommandTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}
	// sh -> sleep: the whole process group must be killed.
	cmd := PassphraseCommand{Argv: []string{makeScript(t, "slow.sh", "#!/bin/sh\nsleep 30\necho done\n")}}
	if _, err := cmd.Passphrase(context.Background()); err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Passphrase() error = %v, want timeout", err)
	}
}

func TestPassphraseCommandValidate(t *testing.T) {
	dir := t.TempDir()
	nonExec := filepath.Join(dir, "noexec")
	if err := os.WriteFile(nonExec, []byte("data"), 0600); err != nil {
		t.Fatal(err)
	}
	execFile := filepath.Join(dir, "exec")
	if err := os.WriteFile(execFile, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}
	groupWritable := filepath.Join(dir, "gw")
	if err := os.WriteFile(groupWritable, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(groupWritable, 0770); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		argv    []string
		wantErr string
	}{
		{"valid", []string{execFile}, ""},
		{"empty", nil, "non-empty"},
		{"relative", []string{"./script.sh"}, "absolute path"},
		{"not executable", []string{nonExec}, "not executable"},
		{"directory", []string{dir}, "directory"},
		{"group writable", []string{groupWritable}, "group or world writable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &PassphraseCommand{Argv: tt.argv}
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	var unset *PassphraseCommand
	if unset.Enabled() {
		t.Error("nil command reports enabled")
	}
}
