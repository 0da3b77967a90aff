package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stagehand/internal/util/retry"
)

func TestInstall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		wantResult InstallResult
		wantErr    bool
		wantFatal  bool
	}{
		{name: "created", status: http.StatusCreated, wantResult: Installed},
		{name: "ok", status: http.StatusOK, wantResult: Installed},
		{name: "conflict means installed", status: http.StatusConflict, wantResult: AlreadyInstalled},
		{name: "bad request is fatal", status: http.StatusBadRequest, wantErr: true, wantFatal: true},
		{name: "not found is fatal", status: http.StatusNotFound, wantErr: true, wantFatal: true},
		{name: "server error is retryable", status: http.StatusBadGateway, wantErr: true},
		{name: "throttling is retryable", status: http.StatusTooManyRequests, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/tenants/tenant-1/plugins/install", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req installRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "official/openai", req.PluginID)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("details"))
			}))
			defer server.Close()

			client := NewClient(server.URL+"/", WithHTTPClient(server.Client()))
			result, err := client.Install(context.Background(), "tenant-1", "official/openai")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantResult, result)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantFatal, retry.IsFatal(err))

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, "details", statusErr.Body)
		})
	}
}

func TestInstall_TransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).Install(context.Background(), "tenant-1", "official/openai")
	require.Error(t, err)
	assert.False(t, retry.IsFatal(err))
}

func TestInstallResultString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "installed", Installed.String())
	assert.Equal(t, "already-installed", AlreadyInstalled.String())
}
