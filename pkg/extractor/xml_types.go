package extractor

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/pungrid/pungrid/pkg/types"
)

const (
	// spotMarket is the only market whose rows are accepted.
	spotMarket = "MGP"

	hourlyRowTag  = "Prezzi"
	quarterRowTag = "PrezziQuartorari"

	hourlyGranularityTag  = "PT60"
	quarterGranularityTag = "PT15"

	fieldDate        = "Data"
	fieldMarket      = "Mercato"
	fieldGranularity = "Granularita"
	fieldHour        = "Ora"
	fieldPeriod      = "Periodo"
	fieldNational    = "PUN"
)

// document is the root element of a day file. Its name varies between
// publications (NewDataSet, DocumentElement) so any root is accepted.
type document struct {
	Rows []row `xml:",any"`
}

// row is one delivery slot. Zone prices are children named by zone code, so
// all children are captured generically.
type row struct {
	XMLName xml.Name
	Fields  []field `xml:",any"`
}

type field struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// get returns the trimmed value of the named child and whether it exists
// with a non-empty value.
func (r row) get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.XMLName.Local == name {
			v := strings.TrimSpace(f.Value)
			return v, v != ""
		}
	}
	return "", false
}

// granularity returns the slot length implied by the row's container tag.
func (r row) granularity() (time.Duration, bool) {
	switch r.XMLName.Local {
	case hourlyRowTag:
		return types.Hourly, true
	case quarterRowTag:
		return types.QuarterHourly, true
	default:
		return 0, false
	}
}

func granularityTag(g time.Duration) string {
	if g == types.QuarterHourly {
		return quarterGranularityTag
	}
	return hourlyGranularityTag
}

func slotField(g time.Duration) string {
	if g == types.QuarterHourly {
		return fieldPeriod
	}
	return fieldHour
}
