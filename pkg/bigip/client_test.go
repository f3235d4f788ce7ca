package bigip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.Address = server.URL
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestNewClient_AddressRequired(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestNewClient_AssumesHTTPS(t *testing.T) {
	client, err := NewClient(Options{Address: "lb.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https", client.base.Scheme)
}

func TestGet_BasicAuth(t *testing.T) {
	var gotUser, gotPass string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"items":[]}`)
	})

	client := testClient(t, handler, Options{Username: "admin", Password: "secret"})

	resp, err := client.Get(context.Background(), "/mgmt/tm/asm/policies/")
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestGet_NonOKReturnedAsValue(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "no access")
	})

	client := testClient(t, handler, Options{})

	resp, err := client.Get(context.Background(), "/mgmt/tm/asm/policies/")
	require.NoError(t, err, "non-2xx is a value, not a transport error")
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "no access", string(resp.Body))
}

func TestPost_SendsJSON(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"task-1"}`)
	})

	client := testClient(t, handler, Options{})

	resp, err := client.Post(context.Background(), "/mgmt/tm/asm/tasks/import-policy/", map[string]any{
		"name": "/Common/p1",
		"file": "<xml/>",
	})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "/Common/p1", gotBody["name"])
	assert.Equal(t, "<xml/>", gotBody["file"])
}

func TestTokenAuth_LoginOnce(t *testing.T) {
	logins := 0
	var gotTokens []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			logins++
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "admin", creds["username"])
			assert.Equal(t, "tmos", creds["loginProviderName"])
			fmt.Fprint(w, `{"token":{"token":"tok-123"}}`)
			return
		}
		gotTokens = append(gotTokens, r.Header.Get("X-F5-Auth-Token"))
		fmt.Fprint(w, `{}`)
	})

	client := testClient(t, handler, Options{Username: "admin", Password: "secret", TokenAuth: true})

	_, err := client.Get(context.Background(), "/mgmt/tm/sys/provision")
	require.NoError(t, err)
	_, err = client.Get(context.Background(), "/mgmt/tm/sys/provision")
	require.NoError(t, err)

	assert.Equal(t, 1, logins, "token is acquired once and reused")
	assert.Equal(t, []string{"tok-123", "tok-123"}, gotTokens)
}

func TestUploadFile_Chunks(t *testing.T) {
	type chunk struct {
		contentRange string
		size         int
	}
	var chunks []chunk
	var path string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		chunks = append(chunks, chunk{
			contentRange: r.Header.Get("Content-Range"),
			size:         len(body),
		})
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	})

	client := testClient(t, handler, Options{})

	content := make([]byte, uploadChunkSize+100)
	err := client.UploadFile(context.Background(), "/mgmt/tm/asm/file-transfer/uploads", content, "a.xml")
	require.NoError(t, err)

	assert.Equal(t, "/mgmt/tm/asm/file-transfer/uploads/a.xml", path)
	require.Len(t, chunks, 2)
	total := len(content)
	assert.Equal(t, fmt.Sprintf("0-%d/%d", uploadChunkSize-1, total), chunks[0].contentRange)
	assert.Equal(t, uploadChunkSize, chunks[0].size)
	assert.Equal(t, fmt.Sprintf("%d-%d/%d", uploadChunkSize, total-1, total), chunks[1].contentRange)
	assert.Equal(t, 100, chunks[1].size)
}

func TestUploadFile_DeviceRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "busy")
	})

	client := testClient(t, handler, Options{})

	err := client.UploadFile(context.Background(), "/mgmt/tm/asm/file-transfer/uploads", []byte("x"), "a.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload the file")
	assert.Contains(t, err.Error(), "busy")
}

func TestResponse_Decode(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte(`{"id":"task-1","status":"STARTED"}`)}

	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, resp.Decode(&parsed))
	assert.Equal(t, "task-1", parsed.ID)
	assert.Equal(t, "STARTED", parsed.Status)

	bad := &Response{Body: []byte("not json")}
	assert.Error(t, bad.Decode(&parsed))
}
