package driver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
			<a href="/give?fund=1">Give today</a>
			<a href="about">About us</a>
			<a href="https://elsewhere.test/pay">Elsewhere</a>
			<a href="mailto:office@church.test">Mail</a>
		</body></html>`))
	})
	mux.HandleFunc("/give", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script src="https://mogiv.com/embed.js"></script></head><body></body></html>`))
	})
	mux.HandleFunc("/bulletin.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html><body>gone</body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCollyDriver_LinksAndMarker(t *testing.T) {
	server := newSiteServer(t)
	d := NewCollyDriver(Options{Timeout: 5 * time.Second})
	defer d.Close()
	ctx := context.Background()

	require.NoError(t, d.Navigate(ctx, server.URL+"/"))

	found, err := d.HasMarker(ctx, "mogiv.com")
	require.NoError(t, err)
	assert.False(t, found)

	links, err := d.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, Link{Href: server.URL + "/give?fund=1", Pathname: "/give", Search: "?fund=1", Text: "Give today"}, links[0])
	assert.Equal(t, Link{Href: server.URL + "/about", Pathname: "/about", Search: "", Text: "About us"}, links[1])

	require.NoError(t, d.Navigate(ctx, links[0].Href))
	found, err = d.HasMarker(ctx, "mogiv.com")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCollyDriver_ErrorStatusStillLoads(t *testing.T) {
	server := newSiteServer(t)
	d := NewCollyDriver(Options{Timeout: 5 * time.Second})

	require.NoError(t, d.Navigate(context.Background(), server.URL+"/missing"))
	links, err := d.Links(context.Background())
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCollyDriver_DownloadIsAborted(t *testing.T) {
	server := newSiteServer(t)
	d := NewCollyDriver(Options{Timeout: 5 * time.Second})

	err := d.Navigate(context.Background(), server.URL+"/bulletin.pdf")
	require.Error(t, err)

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, KindAborted, navErr.Kind)

	_, err = d.HasMarker(context.Background(), "mogiv.com")
	assert.Error(t, err)
}

func TestCollyDriver_UnreachableHost(t *testing.T) {
	server := newSiteServer(t)
	addr := server.URL
	server.Close()

	d := NewCollyDriver(Options{Timeout: 2 * time.Second})
	err := d.Navigate(context.Background(), addr+"/")

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, KindOther, navErr.Kind)
}

func TestHostThrottle(t *testing.T) {
	throttle := NewHostThrottle(1000, 1)
	ctx := context.Background()

	require.NoError(t, throttle.Wait(ctx, "https://a.test/x"))
	require.NoError(t, throttle.Wait(ctx, "https://A.test/y"))
	require.NoError(t, throttle.Wait(ctx, "https://b.test/"))
	assert.Equal(t, 2, throttle.Hosts())

	var disabled *HostThrottle
	assert.NoError(t, disabled.Wait(ctx, "https://a.test"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	slow := NewHostThrottle(0.001, 1)
	require.NoError(t, slow.Wait(ctx, "https://c.test"))
	assert.Error(t, slow.Wait(cancelled, "https://c.test"))
}
