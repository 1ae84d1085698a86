package azblob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known Azurite development account.
const (
	devAccount = "devstoreaccount1"
	devKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

func fakeBlobService(t *testing.T, container string, blobs map[string]string) *httptest.Server {
	t.Helper()
	prefix := "/" + devAccount + "/" + container + "/"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		body, ok := blobs[name]
		if !strings.HasPrefix(r.URL.Path, prefix) || !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"0x8DB0000000000"`)
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connectionString(srv *httptest.Server) string {
	return "DefaultEndpointsProtocol=http;AccountName=" + devAccount +
		";AccountKey=" + devKey +
		";BlobEndpoint=" + srv.URL + "/" + devAccount + ";"
}

func TestFetcher_Fetch(t *testing.T) {
	srv := fakeBlobService(t, "incoming", map[string]string{"report.csv": "id,amount\n1,100\n"})
	f, err := New(connectionString(srv), "incoming")
	require.NoError(t, err)

	content, err := f.Fetch(context.Background(), "report.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,amount\n1,100\n", string(content))
}

func TestFetcher_FetchMissing(t *testing.T) {
	srv := fakeBlobService(t, "incoming", nil)
	f, err := New(connectionString(srv), "incoming")
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "missing.csv")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestNew_RequiresSettings(t *testing.T) {
	_, err := New("", "incoming")
	assert.Error(t, err)
	_, err = New("UseDevelopmentStorage=true", "")
	assert.Error(t, err)
}

func responseError(status int, code string) error {
	u, _ := url.Parse("https://account.blob.core.windows.net/c/b")
	return &azcore.ResponseError{
		ErrorCode:  code,
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       http.NoBody,
			Request:    &http.Request{Method: http.MethodGet, URL: u},
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"blob not found", responseError(404, "BlobNotFound"), domain.KindNotFound},
		{"container not found", responseError(404, "ContainerNotFound"), domain.KindNotFound},
		{"authorization failure", responseError(403, "AuthorizationFailure"), domain.KindAccessDenied},
		{"bad signature", responseError(403, "AuthenticationFailed"), domain.KindAccessDenied},
		{"bare 401", responseError(401, ""), domain.KindAccessDenied},
		{"server busy", responseError(503, "ServerBusy"), domain.KindTransient},
		{"plain error", errors.New("dial tcp: i/o timeout"), domain.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.KindOf(classify(tt.err, "b")))
		})
	}
}
