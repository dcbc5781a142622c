// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/poiesic/corpora/core"
)

// MarshalJob serializes an IngestionJob to bytes.
func MarshalJob(job *core.IngestionJob) []byte {
	buf := make([]byte, core.IngestionJobMUS.Size(*job))
	core.IngestionJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes an IngestionJob from bytes.
func UnmarshalJob(data []byte) (*core.IngestionJob, error) {
	job, _, err := core.IngestionJobMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &job, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalCollectionMeta serializes a CollectionMeta to bytes.
func MarshalCollectionMeta(meta *core.CollectionMeta) []byte {
	buf := make([]byte, core.CollectionMetaMUS.Size(*meta))
	core.CollectionMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalCollectionMeta deserializes a CollectionMeta from bytes.
func UnmarshalCollectionMeta(data []byte) (*core.CollectionMeta, error) {
	meta, _, err := core.CollectionMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &meta, nil
}
