package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetch(hits *atomic.Int32, status int, body string) FetchFunc {
	return func(req *http.Request) (*http.Response, error) {
		hits.Add(1)
		rec := httptest.NewRecorder()
		rec.WriteHeader(status)
		fmt.Fprint(rec, body)
		return rec.Result(), nil
	}
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(data)
}

func TestCachedFetchServesRepeatsFromStore(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Hour)
	var hits atomic.Int32
	fetch := countingFetch(&hits, http.StatusOK, `{"ok":true}`)

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=cat", nil)
		res, err := rc.CachedFetch(req, fetch)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, readBody(t, res))
	}
	assert.Equal(t, int32(1), hits.Load())

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=dog", nil)
	_, err := rc.CachedFetch(req, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedFetchKeyIncludesHeaders(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Hour)
	var hits atomic.Int32
	fetch := countingFetch(&hits, http.StatusOK, `{}`)

	for _, key := range []string{"key-a", "key-b"} {
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=cat", nil)
		req.Header.Set("Authorization", key)
		_, err := rc.CachedFetch(req, fetch)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedFetchExpires(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Minute)
	now := time.Now()
	rc.now = func() time.Time { return now }
	var hits atomic.Int32
	fetch := countingFetch(&hits, http.StatusOK, `{}`)
	get := func() {
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=cat", nil)
		_, err := rc.CachedFetch(req, fetch)
		require.NoError(t, err)
	}

	get()
	get()
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	rc.PurgeExpired()
	get()
	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedFetchDoesNotStoreErrors(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Hour)
	var hits atomic.Int32
	fetch := func(req *http.Request) (*http.Response, error) {
		hits.Add(1)
		return nil, &TransportError{Provider: "test", Status: http.StatusTooManyRequests, Err: fmt.Errorf("slow down")}
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=cat", nil)
		_, err := rc.CachedFetch(req, fetch)
		assert.True(t, IsServerError(err))
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedFetchSharesConcurrentMisses(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Hour)
	// now is read once per lookup, right before a miss joins the flight.
	var lookups atomic.Int32
	rc.now = func() time.Time {
		lookups.Add(1)
		return time.Now()
	}
	var hits atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fetch := func(req *http.Request) (*http.Response, error) {
		hits.Add(1)
		entered <- struct{}{}
		<-release
		rec := httptest.NewRecorder()
		fmt.Fprint(rec, "shared")
		return rec.Result(), nil
	}

	var wg sync.WaitGroup
	bodies := make([]string, 4)
	get := func(i int) {
		defer wg.Done()
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/search?query=cat", nil)
		res, err := rc.CachedFetch(req, fetch)
		if err == nil {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			bodies[i] = string(data)
		}
	}
	wg.Add(len(bodies))
	go get(0)
	<-entered
	for i := 1; i < len(bodies); i++ {
		go get(i)
	}
	require.Eventually(t, func() bool { return lookups.Load() == int32(len(bodies)) },
		time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, b := range bodies {
		assert.Equal(t, "shared", b)
	}
}

func TestNilCacheFetchesDirectly(t *testing.T) {
	var rc *ReqCache
	var hits atomic.Int32
	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)

	res, err := rc.CachedFetch(req, countingFetch(&hits, http.StatusOK, "direct"))

	require.NoError(t, err)
	assert.Equal(t, "direct", readBody(t, res))
	assert.Equal(t, int32(1), hits.Load())
}

func TestSchedulePurge(t *testing.T) {
	rc := NewReqCache(openTestStore(t), time.Hour)
	c := cron.New()
	assert.NoError(t, rc.SchedulePurge(c, "@hourly"))
	assert.Len(t, c.Entries(), 1)
	assert.Error(t, rc.SchedulePurge(c, "not a schedule"))
}
