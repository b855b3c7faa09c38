package madgrades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madgrades-sync/internal/httpx"
	"madgrades-sync/internal/providers"
)

func testUUID(i int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", i)
}

func newTestClient(url string) *Client {
	c := New(url, "secret-token", 2*time.Second, nil)
	c.Retry = httpx.RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		Multiplier:    2,
		MaxDelay:      5 * time.Millisecond,
		RetryStatuses: httpx.DefaultRetryStatuses(),
	}
	return c
}

func pagedServer(t *testing.T, totalPages, perPage int, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/courses" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.Equal(t, strconv.Itoa(perPage), r.URL.Query().Get("per_page"))

		resp := ListCoursesResponse{CurrentPage: page, TotalPages: totalPages, TotalCount: totalPages * perPage}
		for i := 0; i < perPage; i++ {
			n := (page-1)*perPage + i
			resp.Results = append(resp.Results, Course{
				UUID:     testUUID(n),
				Number:   100 + n,
				Name:     fmt.Sprintf("Course %d", n),
				Subjects: []Subject{{Code: "266", Abbreviation: "COMP SCI"}},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNew(t *testing.T) {
	c := New("https://api.madgrades.com/v1/", "tok", 0, nil)
	assert.Equal(t, "https://api.madgrades.com/v1", c.BaseURL)
	assert.Equal(t, 30*time.Second, c.HTTP.Timeout)
	assert.NotNil(t, c.Log)
	assert.Equal(t, "madgrades", c.Name())
}

func TestFetchAllCoursesWalksPages(t *testing.T) {
	var hits int32
	srv := pagedServer(t, 3, 2, &hits)
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.PerPage = 2
	c.ProgressEvery = 2

	var reports []providers.Progress
	courses, err := c.FetchAllCourses(context.Background(), 0, func(p providers.Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)

	assert.Len(t, courses, 6)
	assert.EqualValues(t, 3, hits)
	assert.Equal(t, testUUID(5), courses[5].UUID)
	assert.Equal(t, "COMP SCI", courses[0].Subjects[0].Abbreviation)

	// every 2nd page plus the final one
	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports[0].Page)
	assert.Equal(t, 3, reports[1].Page)
	assert.Equal(t, 6, reports[1].Fetched)
}

func TestFetchAllCoursesLimit(t *testing.T) {
	var hits int32
	srv := pagedServer(t, 10, 5, &hits)
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.PerPage = 5

	courses, err := c.FetchAllCourses(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Len(t, courses, 7)
	assert.EqualValues(t, 2, hits)
}

func TestFetchAllCoursesSkipsMalformedUUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ListCoursesResponse{
			CurrentPage: 1, TotalPages: 1,
			Results: []Course{{UUID: "not-a-uuid", Number: 1}, {UUID: testUUID(1), Number: 2}},
		})
	}))
	defer srv.Close()

	courses, err := newTestClient(srv.URL).FetchAllCourses(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 2, courses[0].Number)
}

func TestFetchAllCoursesDropsRepeatedCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		resp := ListCoursesResponse{CurrentPage: page, TotalPages: 2, TotalCount: 3}
		if page == 1 {
			resp.Results = []Course{{UUID: testUUID(1), Number: 1}, {UUID: testUUID(2), Number: 2}}
		} else {
			// the index shifted: course 2 shows up again on the next page
			resp.Results = []Course{{UUID: testUUID(2), Number: 99}, {UUID: testUUID(3), Number: 3}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	courses, err := newTestClient(srv.URL).FetchAllCourses(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, testUUID(2), courses[1].UUID)
	assert.Equal(t, 2, courses[1].Number)
	assert.Equal(t, testUUID(3), courses[2].UUID)
}

func TestFetchAllCoursesNonRetryableAborts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAllCourses(context.Background(), 0, nil)
	var herr *httpx.HTTPError
	require.True(t, errors.As(err, &herr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
	assert.EqualValues(t, 1, hits)
}

func TestFetchAllCoursesRetriesThenExhausts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAllCourses(context.Background(), 0, nil)
	require.ErrorIs(t, err, httpx.ErrRetriesExhausted)
	assert.EqualValues(t, 3, hits)
}

func TestFetchCourseGrades(t *testing.T) {
	id := testUUID(42)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/"+id+"/grades", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"courseUuid": "` + id + `",
			"courseOfferings": [
				{"termCode": 1252, "sections": [
					{"sectionNumber": 1, "instructors": [{"id": 7, "name": "Ada Lovelace"}, {"id": 8, "name": " "}],
					 "total": 12, "aCount": 5, "abCount": 3, "bCount": 2, "bcCount": 1, "cCount": 1, "dCount": 0, "fCount": 0},
					{"sectionNumber": 2, "instructors": [], "aCount": 1}
				]}
			]
		}`))
	}))
	defer srv.Close()

	payload, err := newTestClient(srv.URL).FetchCourseGrades(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, payload.Offerings, 1)
	off := payload.Offerings[0]
	assert.Equal(t, 1252, off.TermCode)
	require.Len(t, off.Sections, 2)

	s1 := off.Sections[0]
	assert.Equal(t, []string{"Ada Lovelace"}, s1.Instructors)
	require.NotNil(t, s1.Total)
	assert.Equal(t, 12, *s1.Total)
	assert.Equal(t, 12, s1.Grades.Sum())

	s2 := off.Sections[1]
	assert.Nil(t, s2.Total)
	assert.Equal(t, 1, s2.EffectiveTotal())
	assert.Empty(t, s2.Instructors)
}
