package lookup

import "github.com/tidwall/gjson"

// Summary holds the report fields shown in progress output and the ledger.
type Summary struct {
	Known     bool
	Resource  string
	Positives int
	Total     int
	ScanDate  string
	Permalink string
}

// Summarize extracts a Summary from a wrapped result.
func Summarize(result []byte) Summary {
	if len(result) == 0 || !gjson.ValidBytes(result) {
		return Summary{}
	}
	fields := gjson.GetManyBytes(result,
		"results.response_code",
		"results.resource",
		"results.positives",
		"results.total",
		"results.scan_date",
		"results.permalink",
	)
	return Summary{
		Known:     fields[0].Int() == 1,
		Resource:  fields[1].String(),
		Positives: int(fields[2].Int()),
		Total:     int(fields[3].Int()),
		ScanDate:  fields[4].String(),
		Permalink: fields[5].String(),
	}
}
