package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/pkg/response"
)

type call struct {
	method  string
	path    string
	body    any
	params  gin.Params
	userID  string
	role    string
	cookies []*http.Cookie
}

func perform(t *testing.T, handler gin.HandlerFunc, in call) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reader *bytes.Reader
	if in.body != nil {
		raw, err := json.Marshal(in.body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(in.method, in.path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	for _, cookie := range in.cookies {
		c.Request.AddCookie(cookie)
	}
	c.Params = in.params
	if in.userID != "" {
		c.Set(middleware.CtxUserIDKey, in.userID)
		c.Set(middleware.CtxRoleKey, in.role)
	}

	handler(c)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) response.Response {
	t.Helper()

	var payload response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	if data != nil && payload.Data != nil {
		raw, err := json.Marshal(payload.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return payload
}

func idParam(id string) gin.Params {
	return gin.Params{gin.Param{Key: "id", Value: id}}
}
