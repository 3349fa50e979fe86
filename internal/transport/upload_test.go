package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpload_SendsFileAndKind(t *testing.T) {
	var gotKind, gotName, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotKind = r.FormValue("kind")

		file, header, err := r.FormFile("file")
		assert.NoError(t, err)
		defer file.Close()
		gotName = header.Filename

		body, err := io.ReadAll(file)
		assert.NoError(t, err)
		gotBody = string(body)

		json.NewEncoder(w).Encode(map[string]string{"url": "/uploads/abc.jpg"})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	result, err := c.Upload(context.Background(), "/api/upload", "scratch.jpg", "image", strings.NewReader("jpeg-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, "/uploads/abc.jpg", result.Location())

	assert.Equal(t, "image", gotKind)
	assert.Equal(t, "scratch.jpg", gotName)
	assert.Equal(t, "jpeg-bytes", gotBody)
}
