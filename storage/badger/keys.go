package badger

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	jobRecordPrefix      = "jobrec"
	jobCreatedPrefix     = "jobrecc"
	collectionMetaPrefix = "colmeta"
	collectionDataPrefix = "colrec"
	collectionSeqPrefix  = "colseq"
)

// makeJobKey generates a key for a job record by ID.
func makeJobKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobRecordPrefix, id))
}

// makeJobCreatedKey generates a composite key for the creation-time index.
// Format: prefix:timestamp:id
func makeJobCreatedKey(createdAt time.Time, id string) []byte {
	prefix := jobCreatedPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makePartialJobCreatedKey generates a partial key for creation-time scans.
// Format: prefix:timestamp
func makePartialJobCreatedKey(createdAt time.Time) []byte {
	prefix := jobCreatedPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	return buf
}

// makeCollectionMetaKey generates a key for a collection descriptor.
func makeCollectionMetaKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionMetaPrefix, name))
}

// makeChunkKey generates a composite key for a chunk within a collection.
// Collection names cannot contain ':' so the delimiter is unambiguous.
// Format: prefix:name:seq
func makeChunkKey(name string, seq uint64) []byte {
	prefix := collectionDataPrefix + ":" + name + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeChunkPrefix generates the iteration prefix for all chunks of a collection.
func makeChunkPrefix(name string) []byte {
	return []byte(collectionDataPrefix + ":" + name + ":")
}

// makeCollectionSeqName generates the sequence name for a collection's chunk keys.
func makeCollectionSeqName(name string) string {
	return fmt.Sprintf("%s:%s", collectionSeqPrefix, name)
}
