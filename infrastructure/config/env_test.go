package config

import (
	"strings"
	"testing"
)

func TestExpandBracketedVariable(t *testing.T) {
	t.Setenv("INQUEST_ENV_A", "value-a")

	e := &envExpander{}
	got, err := e.Expand("ref: ${INQUEST_ENV_A}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if got != "ref: value-a" {
		t.Errorf("Expand() = %q", got)
	}
}

func TestExpandDefaultValue(t *testing.T) {
	t.Parallel()

	e := &envExpander{}
	got, err := e.Expand("dir: ${INQUEST_ENV_UNSET_X:-/var/findings}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if got != "dir: /var/findings" {
		t.Errorf("Expand() = %q", got)
	}
}

func TestExpandRequiredVariableMissing(t *testing.T) {
	t.Parallel()

	e := &envExpander{}
	_, err := e.Expand("token: ${INQUEST_ENV_UNSET_Y:?token is required}")
	if err == nil {
		t.Fatal("Expand() passed with a required variable unset")
	}
	if !strings.Contains(err.Error(), "token is required") {
		t.Errorf("error %q does not carry the message", err)
	}
}

func TestExpandUnsetNonStrictIsEmpty(t *testing.T) {
	t.Parallel()

	e := &envExpander{}
	got, err := e.Expand("ref: ${INQUEST_ENV_UNSET_Z}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if got != "ref: " {
		t.Errorf("Expand() = %q, want empty substitution", got)
	}
}

func TestExpandStrictReportsAllMissing(t *testing.T) {
	t.Parallel()

	e := &envExpander{strict: true}
	_, err := e.Expand("${INQUEST_ENV_UNSET_P} and ${INQUEST_ENV_UNSET_Q}")
	if err == nil {
		t.Fatal("Expand() passed in strict mode")
	}
	for _, name := range []string{"INQUEST_ENV_UNSET_P", "INQUEST_ENV_UNSET_Q"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q missing %s", err, name)
		}
	}
}

func TestExpandSimpleVariable(t *testing.T) {
	t.Setenv("INQUEST_ENV_B", "value-b")

	got := ExpandEnv("ref: $INQUEST_ENV_B")
	if got != "ref: value-b" {
		t.Errorf("ExpandEnv() = %q", got)
	}
}
