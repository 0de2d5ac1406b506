package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchHistory_Paginates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/conv-1/messages", r.URL.Path)
		page := r.URL.Query().Get("page")

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"data":{"messages":[{"id":"1","type":"text","content":"a"},{"id":"2","type":"image"}],"participants":{"makerId":"m-1","creatorId":"c-1"},"hasMore":true}}`)
		case "2":
			fmt.Fprint(w, `{"data":{"messages":[{"id":"3","type":"payment"}],"hasMore":false}}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "token", WithPageSize(2))
	defer c.Close()

	hist, err := c.FetchHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 3)
	require.Equal(t, "m-1", hist.Participants.MakerID)
	require.Equal(t, "c-1", hist.Participants.CreatorID)
	require.Equal(t, "3", hist.Messages[2].ID())
}

func TestFetchHistory_BareArrayShape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"1","type":"text","content":"a"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	hist, err := c.FetchHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 1)
}

func TestFetchHistory_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	_, err := c.FetchHistory(context.Background(), "conv-1")
	require.ErrorIs(t, err, ErrRequestFailed)
}

func TestUploadImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "photo.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"imageUrl": "https://cdn/photo.png"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	defer c.Close()

	url, err := c.UploadImage(context.Background(), "photo.png", []byte("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn/photo.png", url)
}

func TestUploadImage_Failures(t *testing.T) {
	t.Parallel()

	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
		}))
		defer srv.Close()

		c := New(srv.URL, "")
		defer c.Close()
		_, err := c.UploadImage(context.Background(), "a.png", []byte("x"))
		require.ErrorIs(t, err, ErrUploadFailed)
	})

	t.Run("missing imageUrl", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{}}`)
		}))
		defer srv.Close()

		c := New(srv.URL, "")
		defer c.Close()
		_, err := c.UploadImage(context.Background(), "a.png", []byte("x"))
		require.ErrorIs(t, err, ErrUploadFailed)
	})
}

func TestSideChannelCalls(t *testing.T) {
	t.Parallel()

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.CompleteJob(ctx, "job-1"))
	require.NoError(t, c.CreateEscrow(ctx, "job-1", "150.00"))
	require.NoError(t, c.FundEscrow(ctx, "esc-1"))
	require.NoError(t, c.ReleaseEscrow(ctx, "esc-1"))

	require.Equal(t, []string{
		"/jobs/job-1/complete",
		"/escrow",
		"/escrow/esc-1/fund",
		"/escrow/esc-1/release",
	}, paths)
}
