package storage

// journal holds the pre-image of every key touched while it is active.
// A nil pre-image means the key did not exist.
type journal struct {
	before map[string]*Value
}

// BeginJournal starts recording pre-images so that a later Rollback can
// undo every mutation. Used to make script execution all-or-nothing.
func (ks *Keyspace) BeginJournal() {
	ks.journal = &journal{before: make(map[string]*Value)}
}

// Commit discards the journal, keeping all mutations
func (ks *Keyspace) Commit() {
	ks.journal = nil
}

// Rollback restores every key touched since BeginJournal
func (ks *Keyspace) Rollback() {
	j := ks.journal
	if j == nil {
		return
	}
	ks.journal = nil
	for key, before := range j.before {
		sh := ks.shardFor(key)
		if before == nil {
			delete(sh.data, key)
		} else {
			sh.data[key] = before
		}
	}
}

// record saves the pre-image of key on its first mutation in the journal
func (ks *Keyspace) record(key string) {
	j := ks.journal
	if j == nil {
		return
	}
	if _, seen := j.before[key]; seen {
		return
	}
	if v, ok := ks.shardFor(key).data[key]; ok {
		j.before[key] = v.clone()
	} else {
		j.before[key] = nil
	}
}
