package metric

import (
	"fmt"
	"io"

	"github.com/prometheus/common/expfmt"

	"github.com/c360/trendstreams/errors"
)

// DumpText writes every gathered metric family in Prometheus text format.
// Batch runs end before any scraper comes around; dumping at exit leaves
// the run's counters in the logs or a file.
func (r *MetricsRegistry) DumpText(w io.Writer) error {
	families, err := r.prometheusRegistry.Gather()
	if err != nil {
		return errors.WrapTransient(err, "MetricsRegistry", "DumpText", "gather metrics")
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return errors.WrapTransient(err, "MetricsRegistry", "DumpText",
				fmt.Sprintf("encode family %s", family.GetName()))
		}
	}

	return nil
}
