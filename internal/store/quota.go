package store

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	pickle "github.com/kisielk/og-rek"

	"github.com/router-for-me/RepScan/internal/scanerr"
	"github.com/router-for-me/RepScan/internal/settings"
)

// DefaultCounterFile is the counter record name used by earlier releases.
const DefaultCounterFile = settings.DefaultCounterFile

// QuotaStore persists the number of lookups made in the current accounting
// period as a single CBOR-encoded unsigned integer. Records holding a pickled
// integer, as written by earlier releases, are read and replaced with CBOR on
// the next Save.
type QuotaStore struct {
	fs   billy.Filesystem
	path string
}

// NewQuotaStore constructs a QuotaStore for path inside fsys.
func NewQuotaStore(fsys billy.Filesystem, path string) *QuotaStore {
	if path == "" {
		path = DefaultCounterFile
	}
	return &QuotaStore{fs: fsys, path: path}
}

// Path returns the counter record location.
func (s *QuotaStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load returns the stored count, or 0 when no record exists.
func (s *QuotaStore) Load() (int, error) {
	if s == nil || s.fs == nil {
		return 0, scanerr.Persistence("load counter", "", fmt.Errorf("quota store: not initialized"))
	}
	exists, errExists := Exists(s.fs, s.path)
	if errExists != nil {
		return 0, scanerr.Persistence("load counter", s.path, errExists)
	}
	if !exists {
		return 0, nil
	}

	data, errRead := util.ReadFile(s.fs, s.path)
	if errRead != nil {
		return 0, scanerr.Persistence("load counter", s.path, errRead)
	}
	count, errDecode := decodeCount(data)
	if errDecode != nil {
		return 0, scanerr.Corrupt("load counter", s.path, errDecode)
	}
	return count, nil
}

// Save overwrites the record with count.
func (s *QuotaStore) Save(count int) error {
	if s == nil || s.fs == nil {
		return scanerr.Persistence("save counter", "", fmt.Errorf("quota store: not initialized"))
	}
	if count < 0 {
		return scanerr.Persistence("save counter", s.path, fmt.Errorf("quota store: negative count %d", count))
	}
	data, errEncode := cbor.Marshal(uint64(count))
	if errEncode != nil {
		return scanerr.Persistence("save counter", s.path, errEncode)
	}
	if errWrite := WriteFileAtomic(s.fs, s.path, data); errWrite != nil {
		return scanerr.Persistence("save counter", s.path, errWrite)
	}
	return nil
}

// Clear deletes the record so the next Load starts a new period at 0.
func (s *QuotaStore) Clear() error {
	if s == nil || s.fs == nil {
		return scanerr.Persistence("clear counter", "", fmt.Errorf("quota store: not initialized"))
	}
	if errRemove := RemoveIfExists(s.fs, s.path); errRemove != nil {
		return scanerr.Persistence("clear counter", s.path, errRemove)
	}
	return nil
}

// pickleProto is the PROTO opcode that opens pickles of protocol 2 and later.
// It is also the CBOR empty array, which is never a valid counter.
const pickleProto = 0x80

func decodeCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty counter record")
	}
	if data[0] == pickleProto {
		return decodeLegacyCount(data)
	}
	var raw uint64
	if errUnmarshal := cbor.Unmarshal(data, &raw); errUnmarshal != nil {
		if count, errLegacy := decodeLegacyCount(data); errLegacy == nil {
			return count, nil
		}
		return 0, errUnmarshal
	}
	return checkCount(raw)
}

// decodeLegacyCount reads a pickled integer.
func decodeLegacyCount(data []byte) (int, error) {
	value, errDecode := pickle.NewDecoder(bytes.NewReader(data)).Decode()
	if errDecode != nil {
		return 0, fmt.Errorf("legacy counter: %w", errDecode)
	}
	switch v := value.(type) {
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("legacy counter: negative value %d", v)
		}
		return checkCount(uint64(v))
	case *big.Int:
		if v.Sign() < 0 || !v.IsUint64() {
			return 0, fmt.Errorf("legacy counter: value %s out of range", v)
		}
		return checkCount(v.Uint64())
	default:
		return 0, fmt.Errorf("legacy counter: unexpected %T", value)
	}
}

func checkCount(raw uint64) (int, error) {
	if raw > math.MaxInt32 {
		return 0, fmt.Errorf("counter value %d out of range", raw)
	}
	return int(raw), nil
}
