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

import "errors"

// Domain validation errors
var (
	// ErrValidation indicates bad input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCollectionName indicates a collection name that violates naming rules.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidRetrievalCount indicates a retrieval count k outside the permitted bounds.
	ErrInvalidRetrievalCount = errors.New("retrieval count out of range")

	// ErrUnknownStrategy indicates an unrecognized chunking strategy selector.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")

	// ErrEmptyDocument indicates a document that produced no chunks.
	ErrEmptyDocument = errors.New("document produced no chunks")
)
