package blynk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newCloud(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 200*time.Millisecond)
}

func TestReadPin(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "plain number", body: "42", expected: "42"},
		{name: "quoted", body: `"23.5"`, expected: "23.5"},
		{name: "array", body: `["55"]`, expected: "55"},
		{name: "whitespace", body: " 7\n", expected: "7"},
		{name: "empty", body: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/get" {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				query, _ := url.ParseQuery(r.URL.RawQuery)
				if query.Get("token") != "tok" {
					t.Errorf("Expected token tok, got %q", query.Get("token"))
				}
				if _, ok := query["v3"]; !ok {
					t.Errorf("Expected pin v3 in query %q", r.URL.RawQuery)
				}
				w.Write([]byte(tc.body))
			})

			got, err := client.ReadPin(context.Background(), "tok", "v3")
			if err != nil {
				t.Fatalf("ReadPin returned error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestReadPinUnavailable(t *testing.T) {
	t.Run("bad request", func(t *testing.T) {
		client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"Invalid pin"}}`, http.StatusBadRequest)
		})
		if _, err := client.ReadPin(context.Background(), "tok", "v9"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
		start := time.Now()
		if _, err := client.ReadPin(context.Background(), "tok", "v1"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Expected the call to be bounded by the timeout, took %v", elapsed)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		client := NewClient(srv.URL, 200*time.Millisecond)
		if _, err := client.ReadPin(context.Background(), "tok", "v1"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})
}

func TestIsReachable(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected bool
	}{
		{name: "connected", status: http.StatusOK, body: "true", expected: true},
		{name: "disconnected", status: http.StatusOK, body: "false", expected: false},
		{name: "garbage", status: http.StatusOK, body: "yes", expected: false},
		{name: "invalid token", status: http.StatusBadRequest, body: "true", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/isHardwareConnected" {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			if got := client.IsReachable(context.Background(), "tok"); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if NewClient(srv.URL, 100*time.Millisecond).IsReachable(context.Background(), "tok") {
		t.Error("Expected unreachable on transport error")
	}
}

func TestWritePin(t *testing.T) {
	var got url.Values
	client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/update" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		got = r.URL.Query()
		if got.Get("pin") == "v99" {
			http.Error(w, "invalid pin", http.StatusBadRequest)
		}
	})

	if err := client.WritePin(context.Background(), "tok", "v8", "1"); err != nil {
		t.Fatalf("WritePin returned error: %v", err)
	}
	if got.Get("token") != "tok" || got.Get("pin") != "v8" || got.Get("value") != "1" {
		t.Errorf("Unexpected query %v", got)
	}

	if err := client.WritePin(context.Background(), "tok", "v99", "1"); err == nil {
		t.Error("Expected error for rejected write")
	}
}
