package pmuhttp

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// PmuHttp thin gin wrapper that hands handlers a pooled Context.
type PmuHttp struct {
	r    *gin.Engine
	pool sync.Pool
}

// New returns an engine with recovery, response compression and the given request logger.
func New(loggerHandler HandlerFunc) *PmuHttp {
	l := &PmuHttp{
		r:    gin.New(),
		pool: sync.Pool{},
	}
	l.pool.New = func() interface{} {
		return allocateContext()
	}
	if loggerHandler != nil {
		l.r.Use(l.PmuHttpHandler(loggerHandler))
	}
	l.r.Use(gin.Recovery())
	l.r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	_ = l.r.SetTrustedProxies(nil)
	return l
}

// GetGinRoute GetGinRoute
func (l *PmuHttp) GetGinRoute() *gin.Engine {
	return l.r
}

func allocateContext() *Context {
	return &Context{Context: nil}
}

// Use Use
func (l *PmuHttp) Use(handlers ...HandlerFunc) {
	l.r.Use(l.handlersToGinHandleFunc(handlers)...)
}

type Context struct {
	*gin.Context
}

func (c *Context) reset() {
	c.Context = nil
}

// ResponseError ResponseError
func (c *Context) ResponseError(err error) {
	c.ResponseErrorWithStatus(http.StatusBadRequest, err)
}

// ResponseErrorWithStatus writes err with an explicit HTTP status.
func (c *Context) ResponseErrorWithStatus(status int, err error) {
	c.JSON(status, gin.H{
		"msg":    err.Error(),
		"status": status,
	})
}

// ResponseOK ResponseOK
func (c *Context) ResponseOK() {
	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
	})
}

// ResponseOKWithData ResponseOKWithData
func (c *Context) ResponseOKWithData(data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   data,
	})
}

// HandlerFunc HandlerFunc
type HandlerFunc func(c *Context)

// PmuHttpHandler adapts a HandlerFunc to gin.
func (l *PmuHttp) PmuHttpHandler(handlerFunc HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		hc := l.pool.Get().(*Context)
		hc.reset()
		hc.Context = c
		handlerFunc(hc)
		l.pool.Put(hc)
	}
}

// Run Run
func (l *PmuHttp) Run(addr ...string) error {
	return l.r.Run(addr...)
}

// GET GET
func (l *PmuHttp) GET(relativePath string, handlers ...HandlerFunc) {
	l.r.GET(relativePath, l.handlersToGinHandleFunc(handlers)...)
}

// POST POST
func (l *PmuHttp) POST(relativePath string, handlers ...HandlerFunc) {
	l.r.POST(relativePath, l.handlersToGinHandleFunc(handlers)...)
}

// DELETE DELETE
func (l *PmuHttp) DELETE(relativePath string, handlers ...HandlerFunc) {
	l.r.DELETE(relativePath, l.handlersToGinHandleFunc(handlers)...)
}

func (l *PmuHttp) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	l.r.ServeHTTP(w, req)
}

func (l *PmuHttp) handlersToGinHandleFunc(handlers []HandlerFunc) []gin.HandlerFunc {
	newHandlers := make([]gin.HandlerFunc, 0, len(handlers))
	for _, handler := range handlers {
		newHandlers = append(newHandlers, l.PmuHttpHandler(handler))
	}
	return newHandlers
}

// CORSMiddleware CORSMiddleware
func CORSMiddleware() HandlerFunc {
	return func(c *Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
