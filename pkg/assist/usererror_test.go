package assist

import (
	"errors"
	"fmt"
	"testing"
)

func TestFormatUserError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: userErrorUnknown,
		},
		{
			name: "quota exhausted",
			err:  errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"),
			want: userErrorOverloaded,
		},
		{
			name: "model overloaded",
			err:  errors.New("the model is overloaded, try again later"),
			want: userErrorOverloaded,
		},
		{
			name: "invalid argument",
			err:  errors.New("error 400: INVALID_ARGUMENT"),
			want: userErrorInput,
		},
		{
			name: "bad api key",
			err:  errors.New("error 403: API key not valid"),
			want: userErrorKeys,
		},
		{
			name: "internal server error",
			err:  errors.New("error 500: internal error encountered"),
			want: userErrorInternal,
		},
		{
			name: "connection refused",
			err:  fmt.Errorf("gemini generate: %w", errors.New("dial tcp: connection refused")),
			want: userErrorNetwork,
		},
		{
			name: "anything else",
			err:  errors.New("unexpected end of JSON input"),
			want: userErrorGeneric,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatUserError(testCase.err); got != testCase.want {
				t.Fatalf("FormatUserError = %q, want %q", got, testCase.want)
			}
		})
	}
}
