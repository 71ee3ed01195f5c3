package correlation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/correlation"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"correlation header", map[string]string{correlation.Header: "corr-1"}, "corr-1"},
		{"request id header", map[string]string{correlation.RequestHeader: "req_2"}, "req_2"},
		{"correlation wins", map[string]string{correlation.Header: "a", correlation.RequestHeader: "b"}, "a"},
		{"invalid is replaced", map[string]string{correlation.Header: "bad id\n"}, ""},
		{"too long is replaced", map[string]string{correlation.Header: strings.Repeat("a", 200)}, ""},
		{"missing", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			h := correlation.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = correlation.FromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(correlation.Header))
			if tt.want != "" {
				assert.Equal(t, tt.want, seen)
			} else {
				assert.Len(t, seen, 36)
			}
		})
	}
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	ctx, id := correlation.Ensure(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, correlation.FromContext(ctx))

	ctx2, id2 := correlation.Ensure(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)

	attr, ok := correlation.LoggerExtractor()(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, attr.Value.String())

	_, ok = correlation.LoggerExtractor()(context.Background())
	assert.False(t, ok)
}
