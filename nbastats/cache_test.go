package nbastats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCacheGetPut tests the hit, miss, and write paths against a mocked
// Redis
func TestCacheGetPut(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := &Cache{client: rdb, ttl: time.Minute}

	url := "https://stats.nba.com/stats/shotchartdetail?PlayerID=1629029"
	body := []byte(`{"resultSets":[]}`)

	mock.ExpectGet(cacheKey(url)).RedisNil()
	_, ok := cache.Get(context.Background(), url)
	assert.False(t, ok, "Expected a miss on an empty cache")

	mock.ExpectSet(cacheKey(url), body, time.Minute).SetVal("OK")
	cache.Put(context.Background(), url, body)

	mock.ExpectGet(cacheKey(url)).SetVal(string(body))
	got, ok := cache.Get(context.Background(), url)
	require.True(t, ok, "Expected a hit after Put")
	assert.Equal(t, body, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCacheDegradesOnFailure tests that Redis errors read as misses
func TestCacheDegradesOnFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := &Cache{client: rdb, ttl: time.Minute}

	url := "https://stats.nba.com/stats/leaguegamefinder"
	mock.ExpectGet(cacheKey(url)).SetErr(assert.AnError)

	_, ok := cache.Get(context.Background(), url)
	assert.False(t, ok, "Expected a Redis failure to read as a miss")
}

// TestCacheNilSafe tests that an absent cache behaves as a permanent miss
func TestCacheNilSafe(t *testing.T) {
	var cache *Cache
	_, ok := cache.Get(context.Background(), "u")
	assert.False(t, ok)
	cache.Put(context.Background(), "u", []byte("x"))
	assert.NoError(t, cache.Close())
}

// TestClientServesFromCache tests that a cached response short-circuits the
// HTTP fetch entirely
func TestClientServesFromCache(t *testing.T) {
	payload := shotChartPayload(t, shotRow("0022300001", 1629029, 1610612742, -220, 40, 1))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Cached request must not reach the network")
	}))
	defer srv.Close()

	rdb, mock := redismock.NewClientMock()
	client := NewClient(&Cache{client: rdb, ttl: time.Minute})
	client.baseURL = srv.URL

	u := srv.URL + "/stats/" + shotChartEndpoint + "?" + shotChartParams(1629029, 0, "2023-24").Encode()
	mock.ExpectGet(cacheKey(u)).SetVal(string(payload))

	shots, err := client.PlayerShotChart(context.Background(), 1629029, "2023-24")
	require.NoError(t, err)
	assert.Len(t, shots, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestClientFillsCache tests that a live fetch writes the body back
func TestClientFillsCache(t *testing.T) {
	payload := shotChartPayload(t, shotRow("0022300001", 1629029, 1610612742, -220, 40, 1))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	rdb, mock := redismock.NewClientMock()
	client := NewClient(&Cache{client: rdb, ttl: time.Minute})
	client.baseURL = srv.URL

	u := srv.URL + "/stats/" + shotChartEndpoint + "?" + shotChartParams(1629029, 0, "2023-24").Encode()
	mock.ExpectGet(cacheKey(u)).RedisNil()
	mock.ExpectSet(cacheKey(u), payload, time.Minute).SetVal("OK")

	shots, err := client.PlayerShotChart(context.Background(), 1629029, "2023-24")
	require.NoError(t, err)
	assert.Len(t, shots, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
