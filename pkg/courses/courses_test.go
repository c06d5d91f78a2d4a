package courses

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSource(t *testing.T) {
	var gotKey, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"course_name":"Algebra","date":"2025-03-03","periods":"1-2","classroom":"A101"},
			{"course_name":"History","date":"2025-03-04","periods":"3-4"}
		]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, NewStaticBindings(map[int64]Binding{1: {APIKey: "k-1"}}))
	got, err := src.Courses(context.Background(), 1, "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, "k-1", gotKey)
	assert.Equal(t, "2025-03-03", gotDate)
	require.Len(t, got, 1, "response is filtered again by date")
	assert.Equal(t, "Algebra", got[0].CourseName)

	_, err = src.Courses(context.Background(), 2, "")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestHTTPSource_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()
	src := NewHTTPSource("http://unused.invalid", NewStaticBindings(map[int64]Binding{1: {APIKey: "k", URL: srv.URL}}))
	_, err := src.Courses(context.Background(), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{1: {{CourseName: "A", Date: "2025-03-03", Periods: "1-2"}, {CourseName: "B", Date: "2025-03-04", Periods: "1"}}}
	got, _ := src.Courses(context.Background(), 1, "2025-03-04")
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].CourseName)
	none, _ := src.Courses(context.Background(), 2, "")
	assert.Empty(t, none)
}
