/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name: "valid search",
			req:  Request{Op: OpSearchQuestions, Params: map[string]string{"q": "goroutine leak"}},
		},
		{
			name: "valid without params",
			req:  Request{Op: OpGetQuestion},
		},
		{
			name:    "unknown operation",
			req:     Request{Op: "drop_table"},
			wantErr: true,
		},
		{
			name:    "empty operation",
			req:     Request{},
			wantErr: true,
		},
		{
			name:    "blank param key",
			req:     Request{Op: OpSearchQuestions, Params: map[string]string{"  ": "x"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequestFingerprintDeterministic(t *testing.T) {
	req := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex", "page": "2"}}
	require.Equal(t, req.Fingerprint(), req.Fingerprint())
	require.Len(t, string(req.Fingerprint()), 64)
}

func TestRequestFingerprintNormalization(t *testing.T) {
	base := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex"}}

	// Key case and surrounding whitespace do not change the identity.
	same := Request{Op: OpSearchQuestions, Params: map[string]string{"Q": "  mutex  "}}
	require.Equal(t, base.Fingerprint(), same.Fingerprint())

	// Parameter values are case-sensitive.
	other := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "Mutex"}}
	require.NotEqual(t, base.Fingerprint(), other.Fingerprint())
}

func TestRequestFingerprintDistinguishes(t *testing.T) {
	fingerprints := map[Fingerprint]string{}
	for _, req := range []Request{
		{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex"}},
		{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex", "page": "2"}},
		{Op: OpSearchByTags, Params: map[string]string{"tagged": "go;channels"}},
		{Op: OpGetQuestion, Params: map[string]string{"id": "42"}},
		{Op: OpGetQuestionAnswers, Params: map[string]string{"id": "42"}},
	} {
		fp := req.Fingerprint()
		prev, clash := fingerprints[fp]
		require.False(t, clash, "fingerprint of %v collides with %s", req, prev)
		fingerprints[fp] = string(req.Op)
	}
}
