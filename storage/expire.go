package storage

import "time"

// expiryCycle periodically reclaims expired keys that are never accessed
// again. Each tick samples a bounded number of keys per shard while
// holding the instance lock.
func (ks *Keyspace) expiryCycle() {
	defer close(ks.cleanupDone)

	ticker := time.NewTicker(ks.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ks.cleanupStop:
			return
		case <-ticker.C:
			ks.locker.Lock()
			ks.ReclaimExpired(ks.expirySample)
			ks.locker.Unlock()
		}
	}
}

// ReclaimExpired samples up to sample keys per shard and deletes the
// expired ones. Returns the number of keys deleted. The caller must hold
// the instance lock.
func (ks *Keyspace) ReclaimExpired(sample int) int {
	now := ks.clock()
	deleted := 0
	for i := range ks.shards {
		sh := &ks.shards[i]
		seen := 0
		for key, v := range sh.data {
			if seen >= sample {
				break
			}
			seen++
			if v.IsExpired(now) {
				ks.record(key)
				delete(sh.data, key)
				deleted++
			}
		}
	}
	return deleted
}
