package archive

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

const (
	eocdSignature = 0x06054b50
	eocdLen       = 22 // EOCD record without comment
	maxCommentLen = 65535
)

// Fingerprint derives a stable identity for the archive's current contents.
// Fast path: a digest over byte size, modification time, and the entry count
// read from the end-of-central-directory record, O(1) in archive size. When
// the record carries ZIP64 sentinel values the entry count is ambiguous and
// the fingerprint escalates to a checksum over the central directory bytes.
//
// Two calls on an unmodified archive return equal values; any change to the
// archive's bytes changes the value with overwhelming probability.
func Fingerprint(path string) (models.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, err)
	}
	defer f.Close()

	eocd, err := readEndOfCentralDir(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, err)
	}

	h := sha256.New()
	if eocd.ambiguous() {
		// ZIP64 or otherwise untrustworthy counts: checksum the directory
		// region itself, from the recorded offset through end of file.
		fmt.Fprintf(h, "dir:%d:", info.Size())
		start := int64(eocd.dirOffset)
		if start > info.Size() {
			start = 0
		}
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, err)
		}
	} else {
		fmt.Fprintf(h, "fast:%d:%d:%d", info.Size(), info.ModTime().UnixNano(), eocd.entries)
	}
	return models.Fingerprint(fmt.Sprintf("%x", h.Sum(nil))), nil
}

type endOfCentralDir struct {
	entries   uint16
	dirSize   uint32
	dirOffset uint32
}

func (e endOfCentralDir) ambiguous() bool {
	return e.entries == math.MaxUint16 || e.dirOffset == math.MaxUint32 || e.dirSize == math.MaxUint32
}

// readEndOfCentralDir scans the archive tail for the EOCD signature. The
// record sits within the last 64KiB+22 bytes (bounded by the comment field).
func readEndOfCentralDir(r io.ReaderAt, size int64) (endOfCentralDir, error) {
	if size < eocdLen {
		return endOfCentralDir{}, fmt.Errorf("file too small for zip directory (%d bytes)", size)
	}

	scan := int64(maxCommentLen + eocdLen)
	if scan > size {
		scan = size
	}
	buf := make([]byte, scan)
	if _, err := r.ReadAt(buf, size-scan); err != nil && err != io.EOF {
		return endOfCentralDir{}, err
	}

	// Scan backwards so the record closest to end of file wins, matching
	// how readers treat archives with trailing garbage.
	for i := len(buf) - eocdLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != eocdSignature {
			continue
		}
		rec := buf[i:]
		return endOfCentralDir{
			entries:   binary.LittleEndian.Uint16(rec[10:]),
			dirSize:   binary.LittleEndian.Uint32(rec[12:]),
			dirOffset: binary.LittleEndian.Uint32(rec[16:]),
		}, nil
	}
	return endOfCentralDir{}, fmt.Errorf("end of central directory not found")
}
