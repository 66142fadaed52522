package settings

import "time"

// Quota defaults published by the reputation service for public keys.
const (
	// DefaultPeriodCap is the number of lookups allowed per accounting period.
	DefaultPeriodCap = 500
	// DefaultPerMinute is the number of lookups allowed before a pacing pause.
	DefaultPerMinute = 4
	// DefaultPause is the length of the pacing pause.
	DefaultPause = 60 * time.Second
	// DefaultRequestTimeout bounds a single lookup round trip.
	DefaultRequestTimeout = 30 * time.Second
)

// File and directory defaults. Earlier releases used the same names; their
// window files load unchanged and their pickled counters are converted on save.
const (
	// DefaultScanDir is the directory scanned when none is configured.
	DefaultScanDir = "VTotalScanDock"
	// DefaultCounterFile holds the period call count.
	DefaultCounterFile = "counter_data.data"
	// DefaultWindowFile holds the period start (month, day, hour).
	DefaultWindowFile = "last_execution_time.csv"
	// DefaultLogFile is the durable log location.
	DefaultLogFile = "VTotal_CliLog.log"
	// DefaultLookupURL is the public reputation API base URL.
	DefaultLookupURL = "https://www.virustotal.com/vtapi/v2"
	// DefaultStatusAddr is the listen address for the status server.
	DefaultStatusAddr = "127.0.0.1:8319"
)

// DefaultSkipNames lists placeholder entries that keep an empty scan
// directory under version control.
var DefaultSkipNames = []string{".keep"}
