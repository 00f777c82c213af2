/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package stackexchange

import (
	"encoding/json"
	"fmt"
)

// Envelope is the common JSON wrapper of every Stack Exchange API response.
// Quota metadata and API errors travel in the same wrapper as the items.
type Envelope struct {
	Items          json.RawMessage `json:"items"`
	HasMore        bool            `json:"has_more"`
	Total          int             `json:"total"`
	QuotaMax       int             `json:"quota_max"`
	QuotaRemaining *int            `json:"quota_remaining"`
	Backoff        int             `json:"backoff"`
	ErrorID        int             `json:"error_id"`
	ErrorName      string          `json:"error_name"`
	ErrorMessage   string          `json:"error_message"`
}

// Owner describes the author of a question or answer.
type Owner struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Reputation  int    `json:"reputation"`
	Link        string `json:"link"`
}

// Question is a Stack Exchange question item.
type Question struct {
	QuestionID   int64    `json:"question_id"`
	Title        string   `json:"title"`
	Body         string   `json:"body,omitempty"`
	Tags         []string `json:"tags"`
	Score        int      `json:"score"`
	ViewCount    int      `json:"view_count"`
	AnswerCount  int      `json:"answer_count"`
	IsAnswered   bool     `json:"is_answered"`
	AcceptedID   int64    `json:"accepted_answer_id,omitempty"`
	CreationDate int64    `json:"creation_date"`
	LastActivity int64    `json:"last_activity_date"`
	Link         string   `json:"link"`
	Owner        Owner    `json:"owner"`
}

// Answer is a Stack Exchange answer item.
type Answer struct {
	AnswerID     int64  `json:"answer_id"`
	QuestionID   int64  `json:"question_id"`
	Body         string `json:"body,omitempty"`
	Score        int    `json:"score"`
	IsAccepted   bool   `json:"is_accepted"`
	CreationDate int64  `json:"creation_date"`
	Owner        Owner  `json:"owner"`
}

// DecodeQuestions decodes the items of a questions response.
func DecodeQuestions(items json.RawMessage) ([]Question, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var questions []Question
	if err := json.Unmarshal(items, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return questions, nil
}

// DecodeAnswers decodes the items of an answers response.
func DecodeAnswers(items json.RawMessage) ([]Answer, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var answers []Answer
	if err := json.Unmarshal(items, &answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return answers, nil
}
