package ptv

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedSignature(key, message string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func TestSignURL(t *testing.T) {
	c := NewClient("https://timetableapi.ptv.vic.gov.au/v3/", "3000123", "9c132d31-6a30-4cac-8d8b-8a1970834799", time.Second)

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{
			name:    "path with query",
			path:    "/departures/route_type/0/stop/1071?expand=Run&expand=Route",
			message: "/v3/departures/route_type/0/stop/1071?expand=Run&expand=Route&devid=3000123",
		},
		{
			name:    "path without query",
			path:    "/routes",
			message: "/v3/routes?devid=3000123",
		},
		{
			name:    "escaped search term",
			path:    "/search/Flinders%20Street?route_types=0",
			message: "/v3/search/Flinders%20Street?route_types=0&devid=3000123",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signed, err := c.SignURL(tc.path)
			require.NoError(t, err)

			sig := expectedSignature("9c132d31-6a30-4cac-8d8b-8a1970834799", tc.message)
			assert.Equal(t, "https://timetableapi.ptv.vic.gov.au"+tc.message+"&signature="+sig, signed)
			assert.Equal(t, strings.ToUpper(sig), sig)
		})
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  int
}

func (o *recordingObserver) Observe(endpoint string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint)
	if err != nil {
		o.errs++
	}
}

func TestDepartures_Success(t *testing.T) {
	mockResponse := `{
		"departures": [
			{
				"stop_id": 1162,
				"route_id": 6,
				"run_id": 951012,
				"run_ref": "951012",
				"direction_id": 1,
				"scheduled_departure_utc": "2024-05-01T08:10:00Z",
				"estimated_departure_utc": null,
				"platform_number": "3",
				"departure_note": ""
			}
		],
		"stops": {},
		"routes": {
			"6": {"route_type": 0, "route_id": 6, "route_name": "Frankston", "route_number": "", "route_gtfs_id": "2-FKN"}
		},
		"runs": {
			"951012": {
				"run_id": 951012,
				"run_ref": "951012",
				"route_id": 6,
				"route_type": 0,
				"final_stop_id": 1071,
				"destination_name": "Flinders Street",
				"interchange": {"feeder": null, "distributor": {"run_ref": "952020", "route_id": 17, "destination_name": "Werribee"}}
			}
		}
	}`

	var gotPath, gotDevID, gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDevID = r.URL.Query().Get("devid")
		gotSig = r.URL.Query().Get("signature")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mockResponse))
	}))
	defer server.Close()

	obs := &recordingObserver{}
	c := NewClient(server.URL+"/v3", "3000123", "key", 2*time.Second).WithObserver(obs)

	resp, err := c.Departures(context.Background(), RouteTypeTrain, 1162)
	require.NoError(t, err)

	assert.Equal(t, "/v3/departures/route_type/0/stop/1162", gotPath)
	assert.Equal(t, "3000123", gotDevID)
	assert.Len(t, gotSig, 40)

	require.Len(t, resp.Departures, 1)
	dep := resp.Departures[0]
	assert.Equal(t, "951012", dep.RunRef)
	require.NotNil(t, dep.PlatformNumber)
	assert.Equal(t, "3", *dep.PlatformNumber)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC), dep.ScheduledDepartureUTC)
	assert.Equal(t, "", dep.Note())

	run := resp.Runs["951012"]
	assert.Equal(t, 1071, run.FinalStopID)
	require.NotNil(t, run.Distributor())
	assert.Equal(t, "952020", run.Distributor().RunRef)
	assert.Equal(t, "2-FKN", resp.Routes["6"].RouteGTFSID)

	assert.Equal(t, []string{"departures"}, obs.calls)
	assert.Zero(t, obs.errs)
}

func TestPattern_PathAndDecode(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"departures": [{"stop_id": 1162, "skipped_stops": [{"stop_id": 1104, "stop_name": "Hawthorn Station"}]}],
			"stops": {"1162": {"stop_id": 1162, "stop_name": "Richmond"}},
			"runs": {"951012": {"run_ref": "951012", "final_stop_id": 1071}}
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "1", "key", time.Second)
	resp, err := c.Pattern(context.Background(), RouteTypeTrain, "951012")
	require.NoError(t, err)

	assert.Equal(t, "/pattern/run/951012/route_type/0", gotPath)
	assert.Contains(t, gotQuery, "include_skipped_stops=true")
	assert.Contains(t, gotQuery, "expand=Stop")

	name, ok := resp.StopName(1162)
	assert.True(t, ok)
	assert.Equal(t, "Richmond", name)
	run, ok := resp.Run("951012")
	assert.True(t, ok)
	assert.Nil(t, run.Distributor())
	assert.Len(t, resp.Departures[0].SkippedStops, 1)
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Forbidden (403): invalid signature"}`))
	}))
	defer server.Close()

	obs := &recordingObserver{}
	c := NewClient(server.URL, "1", "key", time.Second).WithObserver(obs)

	_, err := c.Departures(context.Background(), RouteTypeTrain, 1071)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "invalid signature")
	assert.Equal(t, 1, obs.errs)
}

func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "1", "key", time.Second)
	_, err := c.Pattern(context.Background(), RouteTypeTrain, "1")
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, "1", "key", 50*time.Millisecond)

	start := time.Now()
	_, err := c.Departures(context.Background(), RouteTypeTrain, 1071)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type fakeSearcher struct {
	resp  *SearchResponse
	err   error
	terms []string
}

func (f *fakeSearcher) SearchStops(_ context.Context, term string) (*SearchResponse, error) {
	f.terms = append(f.terms, term)
	return f.resp, f.err
}

func TestResolveStation(t *testing.T) {
	t.Run("numeric id skips search", func(t *testing.T) {
		s := &fakeSearcher{}
		stop, err := ResolveStation(context.Background(), s, " 1162 ")
		require.NoError(t, err)
		assert.Equal(t, 1162, stop.StopID)
		assert.Empty(t, s.terms)
	})

	t.Run("first search result wins", func(t *testing.T) {
		s := &fakeSearcher{resp: &SearchResponse{Stops: []Stop{
			{StopID: 1162, StopName: "Richmond Station", StopSuburb: "Richmond"},
			{StopID: 1999, StopName: "North Richmond Station"},
		}}}
		stop, err := ResolveStation(context.Background(), s, "Richmond")
		require.NoError(t, err)
		assert.Equal(t, 1162, stop.StopID)
		assert.Equal(t, []string{"Richmond"}, s.terms)
	})

	t.Run("no match is not found", func(t *testing.T) {
		s := &fakeSearcher{resp: &SearchResponse{}}
		_, err := ResolveStation(context.Background(), s, "Nowhere")
		assert.ErrorIs(t, err, ErrStationNotFound)
	})

	t.Run("search failure propagates", func(t *testing.T) {
		s := &fakeSearcher{err: errors.New("boom")}
		_, err := ResolveStation(context.Background(), s, "Richmond")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrStationNotFound)
	})
}

func TestSearchStops_EscapesTerm(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"stops":[{"stop_id":1071,"stop_name":"Flinders Street Station"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "1", "key", time.Second)
	resp, err := c.SearchStops(context.Background(), "Flinders Street")
	require.NoError(t, err)
	assert.Equal(t, "/search/Flinders%20Street", gotPath)
	assert.Equal(t, 1071, resp.Stops[0].StopID)
}
