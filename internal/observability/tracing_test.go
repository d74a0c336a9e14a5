package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/reqctx"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled config produced an enabled provider")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInit_MissingEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), config.TracingConfig{Enabled: true}, "test"); err == nil {
		t.Error("Init without endpoint should fail")
	}
}

func TestInit_Exports(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	p, err := Init(context.Background(), config.TracingConfig{
		Enabled:   true,
		Endpoint:  srv.URL + "/v1/traces",
		PublicKey: "pk",
		SecretKey: "sk",
	}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !p.Enabled() {
		t.Fatal("provider not enabled")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/v1/traces" {
		t.Errorf("export path = %q, want /v1/traces", gotPath)
	}
	if gotAuth != "Basic cGs6c2s=" {
		t.Errorf("Authorization = %q, want basic pk:sk", gotAuth)
	}
}

func TestRequestAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(RequestAttributes{}),
		sdktrace.WithSpanProcessor(rec),
	)
	defer tp.Shutdown(context.Background())

	ctx := reqctx.WithRequestID(context.Background(), "req-7")
	_, span := tp.Tracer("test").Start(ctx, "with id")
	span.End()
	_, span = tp.Tracer("test").Start(context.Background(), "without id")
	span.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == "libula.request_id" && kv.Value.AsString() == "req-7" {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v missing request id", ended[0].Attributes())
	}
	if n := len(ended[1].Attributes()); n != 0 {
		t.Errorf("span without request id has %d attributes", n)
	}
}
