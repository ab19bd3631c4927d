package zonedb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

// MockFetcher simulates the network layer using `testify/mock`.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	if r := args.Get(0); r != nil {
		return r.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

// TestHTTPFetcher_Fetch_Success checks the User-Agent header and body integrity.
func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	expectedBody := calendar(losAngelesVTimezone)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, config.UserAgent, r.Header.Get("User-Agent"), "User-Agent mismatch")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(expectedBody))
	}))
	defer ts.Close()

	fetcher := zonedb.NewHTTPFetcher()
	rc, err := fetcher.Fetch(context.Background(), ts.URL)

	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, expectedBody, string(body))
}

func TestHTTPFetcher_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    string
	}{
		{"NotFound", http.StatusNotFound, "404"},
		{"ServerError", http.StatusInternalServerError, "500"},
		{"Unauthorized", http.StatusUnauthorized, "401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer ts.Close()

			rc, err := zonedb.NewHTTPFetcher().Fetch(context.Background(), ts.URL)

			assert.Error(t, err)
			assert.Nil(t, rc)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHTTPFetcher_Fetch_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := zonedb.NewHTTPFetcher().Fetch(ctx, ts.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPFetcher_Fetch_InvalidURL(t *testing.T) {
	_, err := zonedb.NewHTTPFetcher().Fetch(context.Background(), string([]byte{0x7f}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrInvalidURL)
}

func TestHTTPFetcher_Fetch_ProtocolSecurity(t *testing.T) {
	_, err := zonedb.NewHTTPFetcher().Fetch(context.Background(), "ftp://example.com/zones.ics")

	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrProtocol)
}

func TestRegistry_LoadRemote(t *testing.T) {
	const url = "https://example.com/zones.ics"

	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, url).
		Return(io.NopCloser(strings.NewReader(calendar(losAngelesVTimezone))), nil)

	reg := zonedb.NewRegistry(nil)
	n, err := reg.LoadRemote(context.Background(), m, url)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = reg.Lookup("America/Los_Angeles")
	assert.NoError(t, err)
	m.AssertExpectations(t)
}

func TestRegistry_LoadRemote_Errors(t *testing.T) {
	reg := zonedb.NewRegistry(nil)

	_, err := reg.LoadRemote(context.Background(), nil, "https://example.com")
	assert.EqualError(t, err, config.ErrFetcherMissing)

	m := new(MockFetcher)
	netErr := errors.New("connection refused")
	m.On("Fetch", mock.Anything, "https://example.com").Return(nil, netErr)

	_, err = reg.LoadRemote(context.Background(), m, "https://example.com")
	assert.ErrorIs(t, err, netErr)
	assert.Contains(t, err.Error(), config.ErrZonesLoad)
}
