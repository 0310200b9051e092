package countries

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/libmanage/internal/config"
)

const sampleResponse = `[
  {"name": {"common": "Germany", "official": "Federal Republic of Germany"}, "cca2": "DE", "flags": {"png": "https://flagcdn.com/w320/de.png"}},
  {"name": {"common": "Bulgaria"}, "cca2": "BG", "flags": {"png": "https://flagcdn.com/w320/bg.png"}},
  {"name": {"common": "Austria"}, "cca2": "AT", "flags": {"png": "https://flagcdn.com/w320/at.png"}}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Countries{BaseURL: server.URL, Timeout: 2 * time.Second})
}

func TestClient_Countries(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	})

	list := client.Countries(context.Background())

	assert.Equal(t, "/all?fields=name,cca2,flags", path)
	require.Len(t, list, 3)
	assert.Equal(t, Country{Name: "Austria", Code: "AT", Flag: "https://flagcdn.com/w320/at.png"}, list[0])
	assert.Equal(t, "Bulgaria", list[1].Name)
	assert.Equal(t, "Germany", list[2].Name)
}

func TestClient_CountriesFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"not": "a list"`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			list := client.Countries(context.Background())
			assert.NotNil(t, list)
			assert.Empty(t, list)

			_, err := client.Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(config.Countries{BaseURL: url, Timeout: time.Second})
	assert.Empty(t, client.Countries(context.Background()))
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context) ([]Country, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]Country)
	return list, args.Error(1)
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()
	countries := []Country{{Name: "Austria", Code: "AT"}}

	source := &mockFetcher{}
	source.On("Fetch", mock.Anything).Return(countries, nil).Once()

	cached := NewCachedClient(source, NewMemoryCache(), time.Hour)
	assert.Equal(t, countries, cached.Countries(ctx))
	assert.Equal(t, countries, cached.Countries(ctx))

	source.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestCachedClient_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	source := &mockFetcher{}
	source.On("Fetch", mock.Anything).Return(nil, errors.New("upstream down")).Once()
	source.On("Fetch", mock.Anything).Return([]Country{{Name: "Bulgaria"}}, nil).Once()

	cached := NewCachedClient(source, NewMemoryCache(), time.Hour)
	assert.Empty(t, cached.Countries(ctx))
	assert.Len(t, cached.Countries(ctx), 1)
	source.AssertExpectations(t)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, []Country{{Name: "Austria"}}, time.Minute))
	list, ok, _ := cache.Get(ctx)
	assert.True(t, ok)
	assert.Len(t, list, 1)

	now = now.Add(2 * time.Minute)
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok)
}

func TestNewCache_FallsBackToMemory(t *testing.T) {
	assert.IsType(t, &MemoryCache{}, NewCache(config.Redis{}))
	assert.IsType(t, &MemoryCache{}, NewCache(config.Redis{Addr: "127.0.0.1:1"}))
}

func TestRedisCache(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping")
	}
	client.Del(ctx, cacheKey)
	defer client.Del(context.Background(), cacheKey)

	cache := NewRedisCache(client)
	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []Country{{Name: "Austria", Code: "AT", Flag: "at.png"}}
	require.NoError(t, cache.Set(ctx, want, time.Minute))

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(config.Countries{BaseURL: server.URL, RateLimit: 0.001})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx)
	require.NoError(t, err)
	_, err = client.Fetch(ctx)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
