package crawlerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestNetworkErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *NetworkError
		temporary bool
		timeout   bool
	}{
		{name: "transport", err: NewNetworkError("https://a.com", 0, errors.New("refused")), temporary: true},
		{name: "timeout", err: NewNetworkError("https://a.com", 0, timeoutErr{}), temporary: true, timeout: true},
		{name: "deadline", err: NewTimeoutError("https://a.com", context.DeadlineExceeded), temporary: true, timeout: true},
		{name: "not found", err: NewNetworkError("https://a.com", http.StatusNotFound, errors.New("Not Found"))},
		{name: "throttled", err: NewNetworkError("https://a.com", http.StatusTooManyRequests, errors.New("slow down")), temporary: true},
		{name: "server", err: NewNetworkError("https://a.com", http.StatusBadGateway, errors.New("bad gateway")), temporary: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.temporary, tt.err.Temporary())
			require.Equal(t, tt.timeout, tt.err.Timeout())
		})
	}
}

func TestCorruptedMessage(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("load state: %w", Corrupted("/tmp/state.json", errors.New("unexpected EOF")))

	require.ErrorIs(t, err, ErrCorrupted)
	require.Contains(t, err.Error(), "file is most likely corrupted")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "/tmp/state.json", perr.Path)
}

func TestNoMatchUnwraps(t *testing.T) {
	t.Parallel()

	err := NoMatch("https://a.com/x", "text")
	require.ErrorIs(t, err, ErrNoMatch)
	require.Contains(t, err.Error(), "text")
}
