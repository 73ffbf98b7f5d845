package money

import (
	"errors"
	"testing"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		max   int64
		want  int64
		fails bool
	}{
		{name: "two decimals", in: "19.99", want: 1999},
		{name: "whole amount", in: "499", want: 49900},
		{name: "one decimal", in: "10.5", want: 1050},
		{name: "zero", in: "0", fails: true},
		{name: "negative", in: "-5", fails: true},
		{name: "empty", in: "", fails: true},
		{name: "not a number", in: "abc", fails: true},
		{name: "three decimals", in: "1.999", fails: true},
		{name: "trailing dot", in: "12.", fails: true},
		{name: "infinity", in: "Inf", fails: true},
		{name: "nan", in: "NaN", fails: true},
		{name: "above max", in: "1000.01", max: 100_000, fails: true},
		{name: "at max", in: "1000.00", max: 100_000, want: 100_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMinorUnits(tc.in, tc.max)
			if tc.fails {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v (value %d)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}
