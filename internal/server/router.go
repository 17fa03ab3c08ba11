package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/mca/internal/metrics"
	"github.com/loykin/mca/internal/proxy"
)

// Proxies is the read side of the proxy manager.
type Proxies interface {
	Handles() []proxy.Handle
}

// Usage supplies the latest resource samples keyed by worker name.
type Usage interface {
	Latest() map[string]metrics.Usage
}

// Router provides embeddable read-only HTTP handlers for a running session.
// Endpoints:
//
//	GET {basePath}/healthz        liveness plus ready/total proxy counts
//	GET {basePath}/proxies        every managed proxy with its latest usage
//	GET {basePath}/proxies/:name  one proxy
//	GET {basePath}/metrics        Prometheus exposition
type Router struct {
	proxies  Proxies
	usage    Usage
	basePath string
}

// NewRouter constructs a Router. usage may be nil.
func NewRouter(p Proxies, u Usage, basePath string) *Router {
	return &Router{proxies: p, usage: u, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.GET("/proxies", r.handleProxies)
	group.GET("/proxies/:name", r.handleProxy)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer binds addr and serves the router in the background. Bind errors
// are returned; the caller owns Shutdown.
func NewServer(addr, basePath string, p Proxies, u Usage) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           NewRouter(p, u, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

// Shutdown stops srv, waiting at most grace for in-flight requests.
func Shutdown(srv *http.Server, grace time.Duration) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	OK      bool `json:"ok"`
	Ready   int  `json:"ready"`
	Proxies int  `json:"proxies"`
}

type proxyView struct {
	proxy.Handle
	Usage *metrics.Usage `json:"usage,omitempty"`
}

func (r *Router) handleHealth(c *gin.Context) {
	hs := r.proxies.Handles()
	ready := 0
	for _, h := range hs {
		if h.Ready {
			ready++
		}
	}
	writeJSON(c, http.StatusOK, healthResp{OK: true, Ready: ready, Proxies: len(hs)})
}

func (r *Router) handleProxies(c *gin.Context) {
	hs := r.proxies.Handles()
	usage := r.latest()
	out := make([]proxyView, 0, len(hs))
	for _, h := range hs {
		out = append(out, view(h, usage))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleProxy(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-]"})
		return
	}
	for _, h := range r.proxies.Handles() {
		if h.Name == name {
			writeJSON(c, http.StatusOK, view(h, r.latest()))
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "proxy not found: " + name})
}

func (r *Router) latest() map[string]metrics.Usage {
	if r.usage == nil {
		return nil
	}
	return r.usage.Latest()
}

func view(h proxy.Handle, usage map[string]metrics.Usage) proxyView {
	v := proxyView{Handle: h}
	if u, ok := usage[h.Name]; ok {
		v.Usage = &u
	}
	return v
}
