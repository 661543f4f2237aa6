package opts

import (
	"sort"
	"time"

	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/internal/errs"
)

// MonthlyBoundsKey is where the monthly pass stores its buckets in the
// resolved values.
const MonthlyBoundsKey = "monthly_bounds"

// MonthKeyLayout formats bucket keys as MM-YYYY.
const MonthKeyLayout = "01-2006"

func monthlyBoundsPass(rc *ResolutionContext, values Values) (Values, []Warning, error) {
	if rc.Approach != ApproachMonthly || rc.Dataset == nil {
		return values, nil, nil
	}
	from, okFrom := values.String(OptDateI)
	to, okTo := values.String(OptDateF)
	if !okFrom || !okTo {
		return values, nil, nil
	}
	bounds, err := MonthlyBounds(rc.Dataset, from, to, rc.engine.cfg.dateLayout)
	if err != nil {
		return nil, nil, err
	}
	if len(bounds) == 0 {
		return nil, nil, errs.New(errs.ErrValue, "no dates between %s and %s", from, to)
	}

	out := values.Clone()
	out[MonthlyBoundsKey] = Value{Data: bounds, Provenance: ProvenanceDefault}
	out[OptDateI] = Value{Data: bounds[0].First, Provenance: out[OptDateI].Provenance}
	out[OptDateF] = Value{Data: bounds[len(bounds)-1].Last, Provenance: out[OptDateF].Provenance}
	return out, nil, nil
}

// MonthlyBounds partitions the calendar months touched by [from, to] into
// buckets. Every bucket covers the whole month as it appears in the index:
// Prev is the label before the month's first row (the first row itself at
// the start of the index), First is the month's first row and Last its final
// row. A month with a single row in the index has no distinct first and
// last row and yields no bucket. Buckets are ordered by year then month.
func MonthlyBounds(table dataset.Table, from, to, layout string) ([]MonthBounds, error) {
	if err := missingDates(table, []string{from, to}); err != nil {
		return nil, err
	}
	window, err := table.Slice(from, to, 1)
	if err != nil {
		return nil, err
	}

	months := make(map[string]time.Time)
	for _, label := range window {
		t, err := parseDate(label, layout)
		if err != nil {
			return nil, err
		}
		key := t.Format(MonthKeyLayout)
		if _, seen := months[key]; !seen {
			months[key] = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
	}

	buckets := make(map[string]*MonthBounds, len(months))
	index := table.Index()
	for i, label := range index {
		t, err := parseDate(label, layout)
		if err != nil {
			return nil, err
		}
		key := t.Format(MonthKeyLayout)
		if _, ok := months[key]; !ok {
			continue
		}
		bucket, ok := buckets[key]
		if !ok {
			prev := index[max(i-1, 0)]
			buckets[key] = &MonthBounds{Month: key, Prev: prev, First: label, Last: label}
			continue
		}
		bucket.Last = label
	}

	out := make([]MonthBounds, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket.First == bucket.Last {
			continue
		}
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool {
		return months[out[i].Month].Before(months[out[j].Month])
	})
	return out, nil
}

func parseDate(label, layout string) (time.Time, error) {
	t, err := time.Parse(layout, label)
	if err != nil {
		return time.Time{}, errs.New(errs.ErrValue, "date '%s' does not match the layout %s", label, layout)
	}
	return t, nil
}
