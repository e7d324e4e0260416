package utils

import (
	"time"
)

var parisLocation = loadParis()

func loadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Paris returns the timezone used for age and educational-year boundaries.
func Paris() *time.Location {
	return parisLocation
}

// AgeAt returns the age in full years of someone born on birth at instant at.
func AgeAt(birth, at time.Time) int {
	if birth.IsZero() {
		return 0
	}
	at = at.In(birth.Location())
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}

// Birthday returns the date someone born on birth turns years old.
func Birthday(birth time.Time, years int) time.Time {
	return time.Date(birth.Year()+years, birth.Month(), birth.Day(), 0, 0, 0, 0, birth.Location())
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MinTime returns the earliest of the given times.
func MinTime(first time.Time, others ...time.Time) time.Time {
	out := first
	for _, t := range others {
		if t.Before(out) {
			out = t
		}
	}
	return out
}

func MaxTime(first time.Time, others ...time.Time) time.Time {
	out := first
	for _, t := range others {
		if t.After(out) {
			out = t
		}
	}
	return out
}
