package archive

import "errors"

var (
	// ErrUnreadableArchive is returned when a container cannot be opened:
	// missing file, corrupt directory, or unsupported format.
	ErrUnreadableArchive = errors.New("archive: unreadable archive")

	// ErrCorruptEntry is returned when an entry's checksum does not match
	// after decompression.
	ErrCorruptEntry = errors.New("archive: corrupt entry")

	// ErrEntryNotFound is returned when a locator no longer resolves,
	// typically because the archive changed underneath the index.
	ErrEntryNotFound = errors.New("archive: entry not found")
)
