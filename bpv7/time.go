// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// DtnTime is milliseconds since the start of the year 2000 (UTC), per
// RFC 9171 §4.2.6.
type DtnTime uint64

const (
	milliseconds1970To2k = 946684800000
	milliToSec     int64 = 1000
	nanoToMilli    int64 = 1000000

	// DtnTimeEpoch is the zero timestamp indicating the bundle source
	// lacks an accurate clock (spec §3, Bundle.age_millis requirement).
	DtnTimeEpoch DtnTime = 0
)

func (t DtnTime) unixMilliseconds() int64 { return int64(t) + milliseconds1970To2k }

// Time returns the UTC time.Time for this DtnTime.
func (t DtnTime) Time() time.Time {
	unixSec := t.unixMilliseconds() / milliToSec
	unixNano := (t.unixMilliseconds() - unixSec*milliToSec) * nanoToMilli
	return time.Unix(unixSec, unixNano).UTC()
}

func (t DtnTime) String() string { return t.Time().Format("2006-01-02 15:04:05.000") }

// DtnTimeFromTime converts a time.Time to a DtnTime.
func DtnTimeFromTime(t time.Time) DtnTime {
	return DtnTime((t.UTC().UnixNano() / nanoToMilli) - milliseconds1970To2k)
}

// DtnTimeNow returns the current UTC time as a DtnTime.
func DtnTimeNow() DtnTime { return DtnTimeFromTime(time.Now()) }

// CreationTimestamp is (creation_time_millis_since_2000, sequence), spec §3.
type CreationTimestamp [2]uint64

// NewCreationTimestamp builds a CreationTimestamp from a DtnTime and a
// monotonic sequence number used to disambiguate bundles created within
// the same millisecond from the same source.
func NewCreationTimestamp(t DtnTime, sequence uint64) CreationTimestamp {
	return CreationTimestamp{uint64(t), sequence}
}

func (ct CreationTimestamp) DtnTime() DtnTime { return DtnTime(ct[0]) }

// IsZeroTime reports whether the time part is zero, indicating the source
// lacked an accurate clock — in which case a Bundle Age block is required
// (spec §8 invariant 1, via Bundle.CheckValid).
func (ct CreationTimestamp) IsZeroTime() bool { return ct.DtnTime() == DtnTimeEpoch }

func (ct CreationTimestamp) SequenceNumber() uint64 { return ct[1] }

func (ct CreationTimestamp) String() string { return fmt.Sprintf("(%v, %d)", ct.DtnTime(), ct[1]) }

func (ct *CreationTimestamp) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	for _, f := range ct {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}
	return nil
}

func (ct *CreationTimestamp) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("creation timestamp: expected array of 2, got %d", l)
	}
	for i := range ct {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		ct[i] = v
	}
	return nil
}
