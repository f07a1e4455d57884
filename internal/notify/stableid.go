package notify

import (
	"hash/fnv"
	"strconv"
	"time"
)

// StableID derives a deterministic positive 31-bit identifier from
// notification content. The fire time is rounded down to the minute so that
// re-computing the id for the same logical reminder always yields the same
// value: a second Schedule call supersedes the first at the timer level
// instead of duplicating it.
//
// Two distinct shifts that render identical (title, body, minute) collide by
// design; only one alarm stays armed. Distinct employees and shifts produce
// distinct text in practice.
func StableID(title, body string, fireTime time.Time) int32 {
	rounded := fireTime.Truncate(time.Minute)

	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(body))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(strconv.FormatInt(rounded.Unix(), 10)))
	return int32(h.Sum32() & 0x7FFFFFFF)
}

// InstantID derives an identifier for an immediate notification. Unlike
// StableID it folds the exact dispatch instant in, so repeated chat
// notifications with identical text do not replace each other in the tray.
func InstantID(title, body string, now time.Time) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(body))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	return int32(h.Sum32() & 0x7FFFFFFF)
}
