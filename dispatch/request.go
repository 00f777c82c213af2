/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// OperationKind identifies a logical upstream operation.
type OperationKind string

// Supported operations.
const (
	OpSearchQuestions    OperationKind = "search_questions"
	OpSearchByTags       OperationKind = "search_by_tags"
	OpGetQuestion        OperationKind = "get_question"
	OpGetQuestionAnswers OperationKind = "get_question_answers"
)

// IsValid checks if the operation kind is one of the supported values.
func (op OperationKind) IsValid() bool {
	switch op {
	case OpSearchQuestions, OpSearchByTags, OpGetQuestion, OpGetQuestionAnswers:
		return true
	}
	return false
}

// Fingerprint is a deterministic identity of a logical request, derived from
// the operation kind and normalized parameters. It is the key for both
// deduplication of in-flight requests and result cache lookups.
type Fingerprint string

// Request represents one logical upstream call.
type Request struct {
	Op     OperationKind
	Params map[string]string
}

// Validate checks the request before it may be enqueued.
func (r Request) Validate() error {
	if !r.Op.IsValid() {
		return &ValidationError{Message: fmt.Sprintf("unknown operation kind %q", string(r.Op))}
	}
	for key := range r.Params {
		if strings.TrimSpace(key) == "" {
			return &ValidationError{Message: "parameter with empty key"}
		}
	}
	return nil
}

// Fingerprint computes the request's fingerprint. Parameter keys are
// lowercased and values trimmed before hashing, so trivially different
// spellings of the same logical request collapse into one physical call.
func (r Request) Fingerprint() Fingerprint {
	keys := make([]string, 0, len(r.Params))
	normalized := make(map[string]string, len(r.Params))
	for key, value := range r.Params {
		normKey := strings.ToLower(strings.TrimSpace(key))
		normalized[normKey] = strings.TrimSpace(value)
		keys = append(keys, normKey)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(r.Op))
	for _, key := range keys {
		h.Write([]byte{0})
		h.Write([]byte(key))
		h.Write([]byte{'='})
		h.Write([]byte(normalized[key]))
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
