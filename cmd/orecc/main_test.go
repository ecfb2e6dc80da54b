package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantStatus int
		wantStdout []string
		wantStderr []string
	}{
		{
			name:       "compiles",
			args:       []string{"a = 3; a = a + 2; return a;"},
			wantStatus: 0,
			wantStdout: []string{".intel_syntax noprefix", ".globl main", "main:", "ret"},
		},
		{
			name:       "no arguments",
			args:       nil,
			wantStatus: 1,
			wantStderr: []string{"usage: orecc", "got 0"},
		},
		{
			name:       "too many arguments",
			args:       []string{"return 1;", "return 2;"},
			wantStatus: 1,
			wantStderr: []string{"got 2"},
		},
		{
			name:       "syntax error",
			args:       []string{"1 +"},
			wantStatus: 1,
			wantStderr: []string{"1 +", "   ^ syntax error: expected an expression"},
		},
		{
			name:       "unterminated paren",
			args:       []string{"return (1;"},
			wantStatus: 1,
			wantStderr: []string{"syntax error", "expected ')'"},
		},
		{
			name:       "bad byte",
			args:       []string{"return 1 @ 2;"},
			wantStatus: 1,
			wantStderr: []string{"return 1 @ 2;", "^"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			status := run(tc.args, &stdout, &stderr)
			if status != tc.wantStatus {
				t.Fatalf("status = %d, want %d (stderr: %s)", status, tc.wantStatus, stderr.String())
			}
			if tc.wantStatus != 0 && stdout.Len() != 0 {
				t.Errorf("stdout not empty on failure:\n%s", stdout.String())
			}
			for _, want := range tc.wantStdout {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout missing %q:\n%s", want, stdout.String())
				}
			}
			for _, want := range tc.wantStderr {
				if !strings.Contains(stderr.String(), want) {
					t.Errorf("stderr missing %q:\n%s", want, stderr.String())
				}
			}
		})
	}
}
