package opts

import (
	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/internal/errs"
)

// DatasetDefaults are the defaults derived from the loaded dataset.
type DatasetDefaults struct {
	Tickers []string
	DateI   string
	DateF   string
}

// asMap keys the inferred values by the option they default.
func (d DatasetDefaults) asMap() map[string]any {
	return map[string]any{
		OptTickers: append([]string(nil), d.Tickers...),
		OptDateI:   d.DateI,
		OptDateF:   d.DateF,
	}
}

// InferDatasetDefaults derives the ticker list and the analysis window from
// table. Rolling approaches start at row lookback-1 so that the first window
// is full.
func InferDatasetDefaults(table dataset.Table, approach string, lookback *int64) (DatasetDefaults, error) {
	if table == nil {
		return DatasetDefaults{}, errs.New(errs.ErrMissingResource, "no dataset loaded")
	}
	if table.Len() == 0 {
		return DatasetDefaults{}, errs.New(errs.ErrValue, "dataset '%s' has no rows", table.Name())
	}

	offset := 0
	if IsRolling(approach) && lookback != nil {
		offset = int(*lookback) - 1
	}
	first, ok := table.Label(offset)
	if !ok || offset < 0 {
		return DatasetDefaults{}, errs.New(errs.ErrRange,
			"lookback of %d days exceeds the %d rows of dataset '%s'", offset+1, table.Len(), table.Name())
	}
	last, _ := table.Label(table.Len() - 1)
	return DatasetDefaults{
		Tickers: table.Columns(),
		DateI:   first,
		DateF:   last,
	}, nil
}

// applyDatasetDefaults fills options whose declared default is nil and that
// the user left unset.
func (e *Engine) applyDatasetDefaults(rc *ResolutionContext) error {
	inferred, err := InferDatasetDefaults(rc.Dataset, rc.Approach, rc.Lookback)
	if err != nil {
		return err
	}
	for name, value := range inferred.asMap() {
		d, ok := rc.Descriptor(name)
		if !ok || d.Default != nil || rc.Explicit(name) {
			continue
		}
		d.Default = value
		v := Value{Data: cloneData(value), Provenance: ProvenanceDefault}
		rc.Values[name] = v
		rc.trace.record(name, phaseDataset, sourceInference, v, "inferred from "+rc.Dataset.Name())
	}
	return nil
}
