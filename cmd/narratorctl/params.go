package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nadzzz/narrator/internal/audio/fx"
)

// parseBands reads a comma separated list of up to fx.NumBands gains in dB,
// lowest band first. Missing trailing bands stay at 0 dB.
func parseBands(s string) ([fx.NumBands]float64, error) {
	var bands [fx.NumBands]float64
	s = strings.TrimSpace(s)
	if s == "" {
		return bands, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > fx.NumBands {
		return bands, fmt.Errorf("eq takes at most %d bands, got %d", fx.NumBands, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bands, fmt.Errorf("eq band %d: %w", i+1, err)
		}
		bands[i] = v
	}
	return bands, nil
}

func buildParams(speed, gain float64, eq string) (fx.Params, error) {
	bands, err := parseBands(eq)
	if err != nil {
		return fx.Params{}, err
	}
	p := fx.Params{Speed: speed, Gain: gain, Bands: bands}
	if err := p.Validate(); err != nil {
		return fx.Params{}, err
	}
	return p, nil
}
