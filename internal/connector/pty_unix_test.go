//go:build !windows

package connector

import (
	"testing"
)

func TestShellCommandStartsLoginShellAtHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LANG", "")

	cmd := shellCommand("/bin/sh", []string{"EDITOR=vi"})
	if len(cmd.Args) != 2 || cmd.Args[1] != "-l" {
		t.Errorf("args = %q", cmd.Args)
	}
	if cmd.Dir != home {
		t.Errorf("dir = %q, want %q", cmd.Dir, home)
	}
	if got := lookupEnv(cmd.Env, "LANG"); got != defaultLang {
		t.Errorf("LANG = %q", got)
	}
	if lookupEnv(cmd.Env, "TERM") != "xterm-256color" || lookupEnv(cmd.Env, "EDITOR") != "vi" {
		t.Errorf("env = %q", cmd.Env)
	}
}

func TestShellCommandKeepsHostLang(t *testing.T) {
	t.Setenv("LANG", "C")
	cmd := shellCommand("/bin/sh", []string{"LANG=pl_PL.UTF-8"})
	if got := lookupEnv(cmd.Env, "LANG"); got != "pl_PL.UTF-8" {
		t.Errorf("LANG = %q", got)
	}
}
