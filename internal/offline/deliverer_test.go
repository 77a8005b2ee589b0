package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPDelivererRouting verifies the action-type to verb/path mapping.
func TestHTTPDelivererRouting(t *testing.T) {
	type seen struct {
		method string
		path   string
		body   map[string]interface{}
	}
	var got seen

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = seen{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&got.body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL)
	ctx := context.Background()

	testCases := []struct {
		name       string
		action     PendingAction
		wantMethod string
		wantPath   string
	}{
		{
			name: "create posts to collection",
			action: PendingAction{
				ID:      "a-1",
				Type:    ActionCreate,
				Entity:  "products",
				Payload: map[string]interface{}{"title": "Desk lamp"},
			},
			wantMethod: http.MethodPost,
			wantPath:   "/products",
		},
		{
			name: "update puts to resource",
			action: PendingAction{
				ID:      "a-2",
				Type:    ActionUpdate,
				Entity:  "products",
				Payload: map[string]interface{}{"id": "p-7", "title": "Desk lamp v2"},
			},
			wantMethod: http.MethodPut,
			wantPath:   "/products/p-7",
		},
		{
			name: "delete targets resource",
			action: PendingAction{
				ID:      "a-3",
				Type:    ActionDelete,
				Entity:  "products",
				Payload: map[string]interface{}{"id": "p-7"},
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/products/p-7",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, d.Deliver(ctx, &tc.action))
			assert.Equal(t, tc.wantMethod, got.method)
			assert.Equal(t, tc.wantPath, got.path)
		})
	}
}

// TestHTTPDelivererErrors verifies that backend rejections and malformed
// actions fail delivery so the queue keeps them.
func TestHTTPDelivererErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL)
	ctx := context.Background()

	err := d.Deliver(ctx, &PendingAction{
		ID:      "a-1",
		Type:    ActionCreate,
		Entity:  "products",
		Payload: map[string]interface{}{},
	})
	assert.Error(t, err)

	// An update without an id cannot be routed.
	err = d.Deliver(ctx, &PendingAction{
		ID:      "a-2",
		Type:    ActionUpdate,
		Entity:  "products",
		Payload: map[string]interface{}{"title": "no id"},
	})
	assert.Error(t, err)
}
