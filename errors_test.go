package uetsim

import (
	"errors"
	"testing"
)

func TestConfigErrorJoinsMessages(t *testing.T) {
	err := &ConfigError{Errors: []error{
		errInvalidField("Foo.Bar", "must be > 0"),
		errInvalidField("Foo.Baz", "must be non-empty"),
	}}

	want := "uetsim: invalid configuration: Foo.Bar: must be > 0; Foo.Baz: must be non-empty"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestConfigErrorEmpty(t *testing.T) {
	err := &ConfigError{}
	if err.Error() != "uetsim: invalid configuration" {
		t.Fatalf("got %q", err.Error())
	}
}

func TestConfigErrorUnwrap(t *testing.T) {
	sentinel := errInvalidField("X", "bad")
	err := &ConfigError{Errors: []error{sentinel}}
	if !errors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to find the wrapped field error")
	}
}
