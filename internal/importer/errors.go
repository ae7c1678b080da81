package importer

import "github.com/rotisserie/eris"

// Concurrency and pre-flight failures. All are fast-fail with no partial
// state; callers match them with eris.Is.
var (
	// ErrAlreadyImporting is returned when an ordinary import is requested
	// while another import holds the run lock.
	ErrAlreadyImporting = eris.New("an import is already running")

	// ErrForceInFlight is returned when any import is requested while a
	// forced reimport holds the run lock. Forced reimports must not be
	// interleaved with anything else.
	ErrForceInFlight = eris.New("a forced reimport is in progress")

	// ErrUnsupportedPlatform is returned when the default source location
	// is requested on a platform that has no Messages database.
	ErrUnsupportedPlatform = eris.New("no Messages database on this platform; pass an explicit source path")

	// ErrSourceAccess is returned when the source database exists but
	// cannot be read (most commonly missing Full Disk Access).
	ErrSourceAccess = eris.New("cannot read the source database")
)
