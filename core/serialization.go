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


package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted record types. Timestamps are stored
// as microseconds since the Unix epoch.
var (
	IngestionJobMUS   = ingestionJobMUS{}
	ChunkMUS          = chunkMUS{}
	CollectionMetaMUS = collectionMetaMUS{}
)

type ingestionJobMUS struct{}

func (s ingestionJobMUS) Marshal(v IngestionJob, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.CollectionName, bs[n:])
	n += ord.String.Marshal(string(v.Strategy), bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += raw.Float64.Marshal(v.Progress, bs[n:])
	n += ord.String.Marshal(v.Message, bs[n:])
	n += ord.String.Marshal(v.ErrorDetail, bs[n:])
	n += ord.String.Marshal(v.SourceFilename, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += varint.Int64.Marshal(v.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(v.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

func (s ingestionJobMUS) Unmarshal(bs []byte) (v IngestionJob, n int, err error) {
	var (
		n1       int
		strategy string
		status   string
		micros   int64
	)
	v.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.CollectionName, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	strategy, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Strategy = Strategy(strategy)
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = JobStatus(status)
	v.Progress, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Message, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ErrorDetail, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SourceFilename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt = time.UnixMicro(micros).UTC()
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

func (s ingestionJobMUS) Size(v IngestionJob) (size int) {
	size = ord.String.Size(v.ID)
	size += ord.String.Size(v.CollectionName)
	size += ord.String.Size(string(v.Strategy))
	size += ord.String.Size(string(v.Status))
	size += raw.Float64.Size(v.Progress)
	size += ord.String.Size(v.Message)
	size += ord.String.Size(v.ErrorDetail)
	size += ord.String.Size(v.SourceFilename)
	size += varint.Int.Size(v.ChunkCount)
	size += varint.Int64.Size(v.CreatedAt.UnixMicro())
	size += varint.Int64.Size(v.UpdatedAt.UnixMicro())
	return size
}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(v.Seq, bs)
	n += varint.Uint64.Marshal(uint64(v.DocumentID), bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int64.Marshal(v.InsertedAt.UnixMicro(), bs[n:])
	return n
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var (
		n1     int
		docID  uint64
		length int
		micros int64
	)
	v.Seq, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	docID, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.DocumentID = DocumentID(docID)
	v.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length > 0 {
		v.Vector = make([]float32, length)
		for i := 0; i < length; i++ {
			v.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
		}
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt = time.UnixMicro(micros).UTC()
	return
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = varint.Uint64.Size(v.Seq)
	size += varint.Uint64.Size(uint64(v.DocumentID))
	size += ord.String.Size(v.Source)
	size += varint.Int.Size(v.Index)
	size += ord.String.Size(v.Text)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	size += varint.Int64.Size(v.InsertedAt.UnixMicro())
	return size
}

type collectionMetaMUS struct{}

func (s collectionMetaMUS) Marshal(v CollectionMeta, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += varint.Int64.Marshal(v.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(v.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

func (s collectionMetaMUS) Unmarshal(bs []byte) (v CollectionMeta, n int, err error) {
	var (
		n1     int
		micros int64
	)
	v.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt = time.UnixMicro(micros).UTC()
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

func (s collectionMetaMUS) Size(v CollectionMeta) (size int) {
	size = ord.String.Size(v.Name)
	size += varint.Int.Size(v.ChunkCount)
	size += varint.Int64.Size(v.CreatedAt.UnixMicro())
	size += varint.Int64.Size(v.UpdatedAt.UnixMicro())
	return size
}
