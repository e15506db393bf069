package core

import "fmt"

var monthAbbrev = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// DisplayLabel renders a key as a short tab label, e.g. "Dec 2nd".
func DisplayLabel(k PeriodKey) string {
	if !k.Valid() {
		return k.String()
	}
	return monthAbbrev[k.Month-1] + " " + halfOrdinal(k.Half)
}

// DisplayLabelWithYear appends a two-digit year, e.g. "Dec 2nd '24".
func DisplayLabelWithYear(k PeriodKey) string {
	if !k.Valid() {
		return k.String()
	}
	return fmt.Sprintf("%s '%02d", DisplayLabel(k), k.Year%100)
}

// Labeler returns a label function for a list of keys: with a year suffix
// when the keys span more than one year, without otherwise.
func Labeler(keys []PeriodKey) func(PeriodKey) string {
	for i := 1; i < len(keys); i++ {
		if keys[i].Year != keys[0].Year {
			return DisplayLabelWithYear
		}
	}
	return DisplayLabel
}

func halfOrdinal(h Half) string {
	if h == FirstHalf {
		return "1st"
	}
	return "2nd"
}
