package runtime

import "github.com/cespare/xxhash/v2"

// DefaultShards is the number of independently locked partitions of the
// presence table and of the room table.
const DefaultShards = 32

func shardIndex(key string, shards int) int {
	return int(xxhash.Sum64String(key) % uint64(shards))
}

func normalizeShards(shards int) int {
	if shards <= 0 {
		return DefaultShards
	}
	return shards
}
