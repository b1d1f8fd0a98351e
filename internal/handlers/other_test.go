package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ln-donations/internal/donor"
	"ln-donations/internal/donor/memory"
	"ln-donations/internal/merchants"
	"ln-donations/internal/middleware"
	"ln-donations/internal/models"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetDonors(t *testing.T) {
	donors := memory.New()
	ctx := context.Background()
	require.NoError(t, donors.Upsert(ctx, &models.DonorRecord{
		InvoiceID: "INV1", Name: "Jo Doe", Email: "jo@example.com",
		Amount: decimal.NewFromInt(25), Tier: models.TierFriend, DonationType: models.DonationNamed,
	}))
	require.NoError(t, donors.Upsert(ctx, &models.DonorRecord{
		InvoiceID: "INV2", Amount: decimal.NewFromInt(10), Tier: models.TierSupporter, DonationType: models.DonationAnonymous,
	}))

	h := NewDonorHandler(testLog(), donors)
	r := gin.New()
	r.GET("/api/donors", h.GetDonors)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/donors", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "jo@example.com")

	var list struct {
		Donors []publicDonor `json:"donors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Donors, 1)
	assert.Equal(t, "Jo Doe", list.Donors[0].Name)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/donors?type=stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.DonorStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.TotalDonations)
	assert.EqualValues(t, 1, stats.NamedCount)
	assert.EqualValues(t, 1, stats.AnonymousCount)
	assert.True(t, decimal.NewFromInt(35).Equal(stats.TotalAmount))
}

func TestGetDonors_StoreFailure(t *testing.T) {
	h := NewDonorHandler(testLog(), failingListStore{memory.New()})
	r := gin.New()
	r.GET("/api/donors", h.GetDonors)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/donors", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type failingListStore struct{ donor.Store }

func (failingListStore) ListNamed(context.Context) ([]*models.DonorRecord, error) {
	return nil, errors.New("connection reset")
}

func TestMerchants(t *testing.T) {
	h := NewMerchantHandler(merchants.Default())
	r := gin.New()
	r.GET("/api/merchants", h.ListMerchants)
	r.GET("/api/merchants/:slug", h.GetMerchant)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/merchants?lightning=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Merchants  []merchants.Merchant `json:"merchants"`
		Categories []string             `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.NotEmpty(t, list.Merchants)
	for _, m := range list.Merchants {
		assert.True(t, m.Lightning)
	}
	assert.NotEmpty(t, list.Categories)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/merchants/harbor-coffee", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/merchants/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

const (
	adminSecret   = "admin-secret"
	adminUser     = "ops"
	adminPassword = "correct horse battery staple"
)

func adminRouter(t *testing.T) *gin.Engine {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	donors := memory.New()
	require.NoError(t, donors.Upsert(context.Background(), &models.DonorRecord{
		InvoiceID: "INV1", Name: "Jo Doe", Email: "jo@example.com",
		Amount: decimal.NewFromInt(25), Tier: models.TierFriend, DonationType: models.DonationNamed,
	}))

	auth := NewAuthHandler(testLog(), adminSecret, adminUser, string(hash))
	admin := NewAdminHandler(testLog(), donors)

	r := gin.New()
	r.POST("/api/admin/login", auth.Login)
	group := r.Group("/api/admin")
	group.Use(middleware.AdminAuth(adminSecret, testLog()))
	group.GET("/donors/:invoiceId", admin.GetDonor)
	return r
}

func login(r *gin.Engine, user, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"username": user, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(r, req)
}

func TestAdminLoginAndLookup(t *testing.T) {
	r := adminRouter(t)

	assert.Equal(t, http.StatusUnauthorized, login(r, adminUser, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, "someone", adminPassword).Code)

	w := login(r, adminUser, adminPassword)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(adminSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, adminUser, claims["sub"])
	assert.Equal(t, middleware.AdminRole, claims["role"])

	lookup := func(invoiceID, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/donors/"+invoiceID, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(r, req)
	}

	assert.Equal(t, http.StatusUnauthorized, lookup("INV1", "").Code)

	w = lookup("INV1", resp.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jo@example.com")

	assert.Equal(t, http.StatusNotFound, lookup("INV9", resp.Token).Code)
}

func TestAdminLogin_NotConfigured(t *testing.T) {
	auth := NewAuthHandler(testLog(), "", "", "")
	r := gin.New()
	r.POST("/api/admin/login", auth.Login)

	assert.Equal(t, http.StatusServiceUnavailable, login(r, "a", "b").Code)
}

func TestAuthHandler_TokenExpiry(t *testing.T) {
	auth := NewAuthHandler(testLog(), adminSecret, adminUser, "x")
	auth.now = func() time.Time { return time.Now().Add(-2 * adminTokenTTL) }

	token, err := auth.createJWT(adminUser)
	require.NoError(t, err)

	_, err = jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte(adminSecret), nil })
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
