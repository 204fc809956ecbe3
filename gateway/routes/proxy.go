package routes

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"tenure/observability"
)

// NewProxy forwards one route group straight to the node. The gateway prefix
// is stripped before the upstream path is joined, and trace context rides the
// outbound headers.
func NewProxy(route string, target *url.URL, stripPrefix string) http.Handler {
	prefix := strings.TrimSuffix(stripPrefix, "/")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			stripRoutePrefix(pr.Out.URL, prefix)
			pr.SetURL(target)
			pr.SetXForwarded()
			otel.GetTextMapPropagator().Inject(pr.Out.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		Transport:    otelhttp.NewTransport(http.DefaultTransport),
		ErrorHandler: upstreamErrorHandler(route),
	}
}

// NewStreamProxy forwards websocket upgrades to the node. Upgrades need the
// raw transport, so the traced round tripper is not installed here.
func NewStreamProxy(route string, target *url.URL) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: upstreamErrorHandler(route),
	}
}

func stripRoutePrefix(u *url.URL, prefix string) {
	if prefix == "" || !strings.HasPrefix(u.Path, prefix) {
		return
	}
	rest := strings.TrimPrefix(u.Path, prefix)
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	u.Path = rest
	u.RawPath = ""
}

func upstreamErrorHandler(route string) func(http.ResponseWriter, *http.Request, error) {
	logger := log.Default()
	return func(w http.ResponseWriter, _ *http.Request, err error) {
		logger.Printf("proxy %s: upstream error: %v", route, err)
		observability.Gateway().RecordProxyError(route, "upstream")
		http.Error(w, "upstream error", http.StatusBadGateway)
	}
}
