package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"keyledger/internal/registry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&registry.ValidationError{}, http.StatusBadRequest},
		{registry.ErrDuplicateName, http.StatusConflict},
		{registry.ErrNotFound, http.StatusNotFound},
		{registry.ErrInvalidKey, http.StatusUnauthorized},
		{registry.ErrQuotaExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: %w", registry.ErrStoreUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", handler)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	return rr
}

func TestAbort(t *testing.T) {
	t.Run("validation details", func(t *testing.T) {
		rr := serve(func(c *gin.Context) {
			Abort(c, &registry.ValidationError{Fields: []registry.FieldError{{Field: "name", Message: "must be at least 3 characters"}}})
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var body struct {
			Error   string                `json:"error"`
			Details []registry.FieldError `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "validation failed", body.Error)
		require.Len(t, body.Details, 1)
		assert.Equal(t, "name", body.Details[0].Field)
	})

	t.Run("store details are hidden", func(t *testing.T) {
		rr := serve(func(c *gin.Context) {
			Abort(c, fmt.Errorf("%w: %w", registry.ErrStoreUnavailable, errors.New("password=hunter2")))
		})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "hunter2")
	})

	t.Run("unknown error", func(t *testing.T) {
		rr := serve(func(c *gin.Context) { Abort(c, errors.New("secret detail")) })
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
	})

	t.Run("domain message", func(t *testing.T) {
		rr := serve(func(c *gin.Context) { Abort(c, registry.ErrDuplicateName) })
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.JSONEq(t, `{"error":"an api key with this name already exists"}`, rr.Body.String())
	})
}
