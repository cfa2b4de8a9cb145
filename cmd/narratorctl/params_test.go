package main

import (
	"errors"
	"testing"

	"github.com/nadzzz/narrator/internal/audio/fx"
)

func TestParseBands(t *testing.T) {
	got, err := parseBands("3, -4,6")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := [fx.NumBands]float64{3, -4, 6, 0, 0}
	if got != want {
		t.Fatalf("bands = %v, want %v", got, want)
	}

	if _, err := parseBands("1,2,3,4,5,6"); err == nil {
		t.Fatal("expected error for six bands")
	}
	if _, err := parseBands("1,x"); err == nil {
		t.Fatal("expected error for non-numeric band")
	}
}

func TestBuildParams(t *testing.T) {
	p, err := buildParams(1, 1, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !p.IsIdentity() {
		t.Fatalf("params = %+v, want identity", p)
	}

	if _, err := buildParams(0, 1, ""); !errors.Is(err, fx.ErrInvalidParams) {
		t.Fatalf("zero speed err = %v, want ErrInvalidParams", err)
	}
}
