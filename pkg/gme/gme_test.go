package gme

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: day}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		name       string
		today      civil.Date
		actualOnly bool
		wantStart  civil.Date
		wantEnd    civil.Date
	}{
		{"mid month", d(2024, time.June, 15), false, d(2024, time.June, 1), d(2024, time.June, 16)},
		{"early month includes previous", d(2024, time.March, 2), false, d(2024, time.February, 27), d(2024, time.March, 3)},
		{"early month actual only", d(2024, time.March, 2), true, d(2024, time.March, 1), d(2024, time.March, 3)},
		{"fourth of month", d(2024, time.March, 4), false, d(2024, time.March, 1), d(2024, time.March, 5)},
		{"new year", d(2025, time.January, 1), false, d(2024, time.December, 29), d(2025, time.January, 2)},
		{"end of month", d(2024, time.June, 30), false, d(2024, time.June, 1), d(2024, time.July, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := Window(tc.today, tc.actualOnly)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
		})
	}
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("20240601MGPPrezzi.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<NewDataSet/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		body := zipBytes(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "20240601", q.Get("DataInizio"))
			assert.Equal(t, "20240616", q.Get("DataFine"))
			assert.Equal(t, "20240616", q.Get("Date"))
			assert.Equal(t, "MGP", q.Get("Mercato"))
			assert.Equal(t, "Prezzi", q.Get("Settore"))
			assert.Equal(t, "InizioFine", q.Get("FiltroDate"))
			assert.Equal(t, "12103", r.Header.Get("moduleid"))
			assert.Equal(t, "1749", r.Header.Get("tabid"))
			assert.Equal(t, "-1", r.Header.Get("userid"))
			assert.Contains(t, r.Header.Get("User-Agent"), "PUNGrid/")
			w.Header().Set("Content-Type", "application/zip")
			_, _ = w.Write(body)
		}))
		defer ts.Close()

		c := New(ts.URL, 5*time.Second)
		require.NoError(t, c.Validate())
		zr, err := c.Download(context.Background(), d(2024, time.June, 1), d(2024, time.June, 16))
		require.NoError(t, err)
		require.Len(t, zr.File, 1)
		assert.Equal(t, "20240601MGPPrezzi.xml", zr.File[0].Name)
	})

	t.Run("status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		_, err := New(ts.URL, time.Second).Download(context.Background(), d(2024, time.June, 1), d(2024, time.June, 2))
		assert.ErrorIs(t, err, ErrStatus)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("not a zip", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}))
		defer ts.Close()

		_, err := New(ts.URL, time.Second).Download(context.Background(), d(2024, time.June, 1), d(2024, time.June, 2))
		assert.ErrorIs(t, err, ErrInvalidArchive)
	})

	t.Run("canceled", func(t *testing.T) {
		body := zipBytes(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(body)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(ts.URL, time.Second).Download(ctx, d(2024, time.June, 1), d(2024, time.June, 2))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Client{}).Validate())
	assert.NoError(t, New(defaultAPIURL, time.Second).Validate())
}
