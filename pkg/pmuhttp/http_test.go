package pmuhttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/stretchr/testify/assert"
)

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(LoggerWithPmulog(pmulog.NewPmuLog("HttpTest")))
	l.Use(CORSMiddleware())
	l.GET("/ok", func(c *Context) {
		c.ResponseOKWithData(gin.H{"idcode": 7})
	})
	l.DELETE("/missing", func(c *Context) {
		c.ResponseErrorWithStatus(http.StatusNotFound, errors.New("no such configuration"))
	})

	w := httptest.NewRecorder()
	l.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":200,"data":{"idcode":7}}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	l.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":404,"msg":"no such configuration"}`, w.Body.String())

	w = httptest.NewRecorder()
	l.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
