package explorer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func stub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL)
}

func jsonStub(t *testing.T, body string) *Client {
	t.Helper()
	return stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
}

func TestBlockHeaderDecodesBufferHash(t *testing.T) {
	var path string
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"header":{"hash":{"data":[18,52,171,205]},"timestamp":1747390000}}`)
	})

	header, err := c.BlockHeader(context.Background(), 6379)
	require.NoError(t, err)
	require.Equal(t, "/blocks/6379?json", path)
	require.Equal(t, "1234abcd", header.Hash)
	require.Equal(t, int64(1747390000), header.Timestamp)
}

func TestBlockHeaderNotFound(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.BlockHeader(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBlockHeaderEmptyBodiesMeanNotFound(t *testing.T) {
	for _, body := range []string{"", "null", "{}", "  {}  "} {
		c := jsonStub(t, body)
		_, err := c.BlockHeader(context.Background(), 1)
		require.ErrorIs(t, err, ErrNotFound, "body %q", body)
	}
}

func TestBlockHeaderRejectsNonJSON(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>maintenance</html>")
	})
	_, err := c.BlockHeader(context.Background(), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestBlockHeaderServerError(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.BlockHeader(context.Background(), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestBlockHeaderMissingHeaderYieldsEmptyHash(t *testing.T) {
	c := jsonStub(t, `{"block":{"height":1}}`)
	header, err := c.BlockHeader(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, header.Hash)
}
