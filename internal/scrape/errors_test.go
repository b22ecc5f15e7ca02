package scrape

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchErrorTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       FetchError
		transient bool
	}{
		{"timeout", FetchError{Class: FailTimeout}, true},
		{"connection", FetchError{Class: FailConnection}, true},
		{"server error", FetchError{Class: FailHTTP, StatusCode: 503}, true},
		{"client error", FetchError{Class: FailHTTP, StatusCode: 404}, false},
		{"unknown", FetchError{Class: FailUnknown}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.transient, tc.err.Transient())
		})
	}
}

func TestFetchErrorMessage(t *testing.T) {
	t.Parallel()

	httpErr := &FetchError{Class: FailHTTP, StatusCode: 404, URL: "https://example.com"}
	require.Equal(t, "fetch https://example.com: http 404", httpErr.Error())

	inner := errors.New("dial tcp: timeout")
	timeoutErr := &FetchError{Class: FailTimeout, URL: "https://example.com", Err: inner}
	require.Contains(t, timeoutErr.Error(), "timeout")
	require.ErrorIs(t, timeoutErr, inner)
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", ClassifyError(nil))
	require.Equal(t, "timeout", ClassifyError(&FetchError{Class: FailTimeout}))
	require.Equal(t, "http_429", ClassifyError(&FetchError{Class: FailHTTP, StatusCode: 429}))
	require.Equal(t, "internal", ClassifyError(errors.New("boom")))

	wrapped := fmt.Errorf("fetch menu: %w", &FetchError{Class: FailConnection})
	require.Equal(t, "connection", ClassifyError(wrapped))
}

func TestTargetKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "india quality", Target{Name: "  India Quality "}.Key())
	require.Equal(t, Target{Name: "Desi Dhaba"}.Key(), Target{Name: "DESI DHABA"}.Key())
}
