package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newJellyfinTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/System/Info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ServerName":"test"}`))
	})
	mux.HandleFunc("/Users", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), "Token=secret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[
			{"Id":"u1","Name":"alice","PrimaryImageTag":"abc"},
			{"Id":"u2","Name":"bob"},
			{"Id":"","Name":"ghost"}
		]`))
	})
	mux.HandleFunc("/Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Items":[
			{"Id":"ep-1","Name":"Pilot","Type":"Episode","SeriesName":"Severance","SeriesId":"series-9",
			 "UserData":{"LastPlayedDate":"2024-03-01T10:00:00.000Z","PlayCount":1}},
			{"Id":"mv-1","Name":"Heat","Type":"Movie","ProviderIds":{"Tmdb":"949"},
			 "UserData":{"LastPlayedDate":"2024-02-10T20:00:00.000Z","PlayCount":2,"IsFavorite":true}},
			{"Id":"ep-2","Name":"Half Loop","Type":"Episode","SeriesName":"Severance","SeriesId":"series-9",
			 "UserData":{"LastPlayedDate":"2024-04-01T08:30:00.000Z","PlayCount":1}},
			{"Id":"x-1","Name":"Some Album","Type":"Audio"}
		]}`))
	})
	mux.HandleFunc("/Users/u1/Items/series-9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Id":"series-9","Name":"Severance","Type":"Series","ProviderIds":{"Tmdb":"95396"}}`))
	})
	mux.HandleFunc("/Items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Items":[
			{"Id":"mv-1","Name":"Heat","Type":"Movie"},
			{"Id":"series-9","Name":"Severance","Type":"Series"}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestJellyfinProvider_GetUsers(t *testing.T) {
	server := newJellyfinTestServer(t)
	provider := NewJellyfinProvider(server.URL, "secret")

	users, err := provider.GetUsers(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(users) != 2 {
		t.Fatalf("Expected 2 users (empty id skipped), got %d", len(users))
	}

	if users[0].ID != "u1" || users[0].Name != "alice" {
		t.Errorf("Expected user u1/alice, got %s/%s", users[0].ID, users[0].Name)
	}
	if users[0].SourceProvider != "jellyfin" {
		t.Errorf("Expected source provider jellyfin, got %s", users[0].SourceProvider)
	}
	if !strings.Contains(users[0].Thumb, "/Users/u1/Images/Primary") || !strings.Contains(users[0].Thumb, "tag=abc") {
		t.Errorf("Expected thumb URL with image tag, got %s", users[0].Thumb)
	}
	if users[1].Thumb != "" {
		t.Errorf("Expected empty thumb for user without image tag, got %s", users[1].Thumb)
	}
}

func TestJellyfinProvider_GetUsers_AuthError(t *testing.T) {
	server := newJellyfinTestServer(t)
	provider := NewJellyfinProvider(server.URL, "wrong-key")

	_, err := provider.GetUsers(context.Background())
	if err == nil {
		t.Fatal("Expected error for invalid api key")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if perr.Type != ErrorTypeAuth {
		t.Errorf("Expected auth error type, got %s", perr.Type)
	}
	if perr.Retryable {
		t.Error("Expected auth error to be non-retryable")
	}
}

func TestJellyfinProvider_GetRecentlyWatched(t *testing.T) {
	server := newJellyfinTestServer(t)
	provider := NewJellyfinProvider(server.URL, "secret")

	items, err := provider.GetRecentlyWatched(context.Background(), "u1", 50)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// 两集Severance合并为一条剧，音频条目被丢弃
	if len(items) != 2 {
		t.Fatalf("Expected 2 deduplicated items, got %d", len(items))
	}

	series := items[0]
	if series.Name != "Severance" || series.MediaType != "tv" {
		t.Errorf("Expected series Severance/tv, got %s/%s", series.Name, series.MediaType)
	}
	if series.TmdbID != "95396" {
		t.Errorf("Expected tmdb id 95396 from item lookup, got %q", series.TmdbID)
	}
	if series.LastPlayedDate == nil {
		t.Fatal("Expected last played date to be set")
	}
	// 合并后保留较新的观看时间
	if got := series.LastPlayedDate.Format("2006-01-02"); got != "2024-04-01" {
		t.Errorf("Expected newest last played date 2024-04-01, got %s", got)
	}
	if !strings.Contains(series.PosterURL, "/Items/series-9/Images/Primary") {
		t.Errorf("Expected poster URL for series, got %s", series.PosterURL)
	}

	movie := items[1]
	if movie.Name != "Heat" || movie.MediaType != "movie" {
		t.Errorf("Expected movie Heat/movie, got %s/%s", movie.Name, movie.MediaType)
	}
	if movie.TmdbID != "949" {
		t.Errorf("Expected tmdb id 949 from provider ids, got %q", movie.TmdbID)
	}
	if movie.PlayCount != 2 {
		t.Errorf("Expected play count 2, got %d", movie.PlayCount)
	}
	if !movie.IsFavorite {
		t.Error("Expected movie to be favorite")
	}
}

func TestJellyfinProvider_GetRecentlyWatched_MissingUser(t *testing.T) {
	provider := NewJellyfinProvider("http://localhost:1", "secret")

	_, err := provider.GetRecentlyWatched(context.Background(), "", 10)
	if err == nil {
		t.Fatal("Expected error for missing user id")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if perr.Type != ErrorTypeConfig {
		t.Errorf("Expected configuration error type, got %s", perr.Type)
	}
}

func TestJellyfinProvider_GetAllItems(t *testing.T) {
	server := newJellyfinTestServer(t)
	provider := NewJellyfinProvider(server.URL, "secret")

	items, err := provider.GetAllItems(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 library items, got %d", len(items))
	}
	if items[0].Name != "Heat" || items[0].MediaType != "movie" {
		t.Errorf("Expected Heat/movie, got %s/%s", items[0].Name, items[0].MediaType)
	}
	if items[1].Name != "Severance" || items[1].MediaType != "tv" {
		t.Errorf("Expected Severance/tv, got %s/%s", items[1].Name, items[1].MediaType)
	}
}
