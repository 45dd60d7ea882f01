package redis

import (
	"strconv"

	"github.com/xraph/jobqueue/entry"
)

// Redis key naming conventions for jobqueue data.
// All keys are prefixed with "jobqueue:" to avoid collisions.

const keyPrefix = "jobqueue:"

// ── Entry keys ──

// entryKey returns the key for an entry hash: jobqueue:entry:{id}
func entryKey(id int64) string { return keyPrefix + "entry:" + strconv.FormatInt(id, 10) }

// entrySeqKey holds the last assigned entry id.
const entrySeqKey = keyPrefix + "entry_seq"

// stateKey returns the Sorted Set of entry ids in a state: jobqueue:state:{name}
func stateKey(s entry.State) string { return keyPrefix + "state:" + s.String() }

// ── State change keys ──

// changesKey is the Sorted Set of state changes scored by change time in
// milliseconds. Members are "{seq}:{entry id}:{state}".
const changesKey = keyPrefix + "changes"

// changeSeqKey keeps change members unique.
const changeSeqKey = keyPrefix + "change_seq"
