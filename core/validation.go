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
	"fmt"
	"regexp"
)

const (
	// MinCollectionNameLength is the minimum length of a collection name.
	MinCollectionNameLength = 3
	// MaxCollectionNameLength is the maximum length of a collection name.
	MaxCollectionNameLength = 512

	// MinRetrievalCount is the smallest permitted retrieval count k.
	MinRetrievalCount = 1
	// MaxRetrievalCount is the largest permitted retrieval count k.
	MaxRetrievalCount = 20
	// DefaultRetrievalCount is used when the caller does not specify k.
	DefaultRetrievalCount = 3
)

// collectionNamePattern requires the first and last character to be
// alphanumeric and permits only letters, digits, dots, underscores and
// hyphens in between. Whitespace is rejected, including leading/trailing.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$`)

// ValidateCollectionName validates a collection name according to naming rules.
//
// Validation rules:
//   - at least MinCollectionNameLength characters
//   - at most MaxCollectionNameLength characters
//   - first and last character alphanumeric
//   - only letters, digits, '.', '_' and '-' permitted
func ValidateCollectionName(name string) error {
	if len(name) < MinCollectionNameLength {
		return fmt.Errorf("%w: %w: must be at least %d characters long",
			ErrValidation, ErrInvalidCollectionName, MinCollectionNameLength)
	}
	if len(name) > MaxCollectionNameLength {
		return fmt.Errorf("%w: %w: must be less than %d characters",
			ErrValidation, ErrInvalidCollectionName, MaxCollectionNameLength)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %w: must start and end with a letter or number, "+
			"and can only contain letters, numbers, dots (.), underscores (_), or hyphens (-)",
			ErrValidation, ErrInvalidCollectionName)
	}
	return nil
}

// ValidateRetrievalCount validates that k is within [MinRetrievalCount, MaxRetrievalCount].
func ValidateRetrievalCount(k int) error {
	if k < MinRetrievalCount || k > MaxRetrievalCount {
		return fmt.Errorf("%w: %w: k must be between %d and %d",
			ErrValidation, ErrInvalidRetrievalCount, MinRetrievalCount, MaxRetrievalCount)
	}
	return nil
}

// ParseStrategy parses a chunking strategy selector.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySemantic:
		return StrategySemantic, nil
	case StrategyFixed:
		return StrategyFixed, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownStrategy, s)
	}
}
