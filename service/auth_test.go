package service

import (
	"net/http"
	"testing"

	"stageflow/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, db *gorm.DB, name, password string, role model.Role) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := string(hash)
	user := model.User{Name: name, Password: &hashed, Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestLoginAndRefresh(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	seedUser(t, db, "alex", "s3cret", model.RoleOperator)

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"name": "alex", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var tokens TokenResp
	decodeData(t, w, &tokens)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "alex", tokens.Username)

	w = doJSON(t, r, http.MethodGet, "/api/auth/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Username     string   `json:"username"`
		Capabilities []string `json:"capabilities"`
	}
	decodeData(t, w, &me)
	assert.Equal(t, "alex", me.Username)
	assert.True(t, stringsContain(me.Capabilities, string(CapImportRun)))
	assert.False(t, stringsContain(me.Capabilities, string(CapTransferApprove)))

	w = doJSON(t, r, http.MethodPost, "/api/auth/refresh", "", map[string]any{
		"refreshToken": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed TokenResp
	decodeData(t, w, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, tokens.UserID, refreshed.UserID)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	seedUser(t, db, "alex", "s3cret", model.RoleOperator)

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"name": "alex", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"name": "nobody", "password": "s3cret",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	setupDB(t)
	r := testRouter()

	w := doJSON(t, r, http.MethodGet, "/api/areas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/areas", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
