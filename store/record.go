package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	profileRecordVersionCurrent = 1
	failureRecordVersionCurrent = 1

	// maxProfileBytes keeps a corrupt length prefix from triggering a huge
	// allocation.
	maxProfileBytes = 1 << 20
)

var errCorruptRecord = errors.New("store: corrupt record")

// CachedProfile is the persisted profile snapshot. Profile is the raw wire
// representation; the store does not interpret it.
type CachedProfile struct {
	Profile  []byte
	CachedAt time.Time
}

// FailureWindow counts consecutive failed attempts since First.
type FailureWindow struct {
	Count uint32
	First time.Time
}

// ExitMarkers record when the host last left the app and whether a session
// was active at that moment.
type ExitMarkers struct {
	ExitedAt         time.Time
	WasAuthenticated bool
}

// EncodeCachedProfile lays out: version(1) | cachedAt unix nanos(8) |
// profile length(4) | profile bytes.
func EncodeCachedProfile(p CachedProfile) ([]byte, error) {
	if len(p.Profile) > maxProfileBytes {
		return nil, errors.New("store: profile too large")
	}

	var buf bytes.Buffer
	buf.Grow(13 + len(p.Profile))
	buf.WriteByte(profileRecordVersionCurrent)

	if err := binary.Write(&buf, binary.BigEndian, p.CachedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(p.Profile))); err != nil {
		return nil, err
	}
	buf.Write(p.Profile)

	return buf.Bytes(), nil
}

func DecodeCachedProfile(data []byte) (CachedProfile, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return CachedProfile{}, err
	}
	if version != profileRecordVersionCurrent {
		return CachedProfile{}, errors.New("store: invalid profile record version")
	}

	var nanos int64
	if err := binary.Read(reader, binary.BigEndian, &nanos); err != nil {
		return CachedProfile{}, err
	}

	var size uint32
	if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
		return CachedProfile{}, err
	}
	if size == 0 || size > maxProfileBytes || int(size) != reader.Len() {
		return CachedProfile{}, errCorruptRecord
	}

	profile := make([]byte, size)
	if _, err := io.ReadFull(reader, profile); err != nil {
		return CachedProfile{}, err
	}

	return CachedProfile{
		Profile:  profile,
		CachedAt: time.Unix(0, nanos),
	}, nil
}

// EncodeFailureWindow lays out: version(1) | count(4) | first unix nanos(8).
func EncodeFailureWindow(w FailureWindow) []byte {
	out := make([]byte, 13)
	out[0] = failureRecordVersionCurrent
	binary.BigEndian.PutUint32(out[1:5], w.Count)
	binary.BigEndian.PutUint64(out[5:13], uint64(w.First.UnixNano()))
	return out
}

func DecodeFailureWindow(data []byte) (FailureWindow, error) {
	if len(data) != 13 || data[0] != failureRecordVersionCurrent {
		return FailureWindow{}, errCorruptRecord
	}
	return FailureWindow{
		Count: binary.BigEndian.Uint32(data[1:5]),
		First: time.Unix(0, int64(binary.BigEndian.Uint64(data[5:13]))),
	}, nil
}

func encodeTimestamp(t time.Time) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(t.UnixNano()))
	return out
}

func decodeTimestamp(data []byte) (time.Time, error) {
	if len(data) != 8 {
		return time.Time{}, errCorruptRecord
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(data))), nil
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func decodeBool(data []byte) (bool, error) {
	if len(data) != 1 || data[0] > 1 {
		return false, errCorruptRecord
	}
	return data[0] == 1, nil
}
