package instcat

import (
	"strconv"
	"strings"
)

// Extinction parameter floors. R_v below rvFloor is clamped to it and
// the matching A_v forced into [avMin, avMax].
const (
	rvFloor = 0.1
	avMin   = 0.0
	avMax   = 1.0
)

// CorrectExtinction applies the staged extinction sanity correction to
// one line, in place. It reports whether the line was counted as
// corrected. The staging follows the production cut:
//
//   - R_v below the floor: clamp R_v to the floor, A_v into [0,1];
//   - R_v below 1: clamp A_v into [0,1], counted only when A_v > 1;
//   - otherwise a negative A_v is zeroed without being counted
//     (it is almost without effect for bulges and minimal for disks).
func CorrectExtinction(l *ObjectLine) (bool, error) {
	if len(l.Tokens) <= colRv {
		return false, nil
	}

	var av, rv float64
	if strings.ToLower(l.Tokens[colExtModel]) != "none" {
		var err error
		av, err = strconv.ParseFloat(l.Tokens[colAv], 64)
		if err != nil {
			return false, err
		}
		rv, err = strconv.ParseFloat(l.Tokens[colRv], 64)
		if err != nil {
			return false, err
		}
	}

	corrected := false
	switch {
	case rv < rvFloor:
		rv = rvFloor
		av = clip(av, avMin, avMax)
		corrected = true
	case rv < 1:
		if av > avMax {
			corrected = true
		}
		av = clip(av, avMin, avMax)
	case av < 0:
		av = 0
	}

	if corrected {
		l.Tokens[colAv] = formatFloat(av)
		l.Tokens[colRv] = formatFloat(rv)
	}
	return corrected, nil
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
