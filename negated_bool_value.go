package main

import (
	"strconv"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*NegatedBoolValue)(nil)

// NegatedBoolValue is a `pflag.Value` that sets a boolean variable to
// the inverse of what the argument would normally indicate (e.g., to
// implement `--no-foo`-style arguments).
type NegatedBoolValue struct {
	value *bool
}

func (v *NegatedBoolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.value = !b
	return nil
}

func (v *NegatedBoolValue) Get() interface{} {
	return !*v.value
}

func (v *NegatedBoolValue) String() string {
	if v == nil || v.value == nil {
		return "false"
	}

	return strconv.FormatBool(!*v.value)
}

func (v *NegatedBoolValue) Type() string {
	return "bool"
}
