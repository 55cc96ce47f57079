package export

import (
	"time"
)

// TimestampLayout stamps generated file names.
const TimestampLayout = "20060102_150405"

// Names are the output file names for one run.
type Names struct {
	Long string
	Wide string
}

// NamesFor builds "long_output_<tag>_<ts>.xlsx" and the wide counterpart.
// An empty tag drops that segment.
func NamesFor(tag string, now time.Time) Names {
	suffix := now.Format(TimestampLayout) + ".xlsx"
	if tag != "" {
		suffix = tag + "_" + suffix
	}
	return Names{
		Long: "long_output_" + suffix,
		Wide: "wide_output_" + suffix,
	}
}
