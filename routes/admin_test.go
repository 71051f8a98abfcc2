package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// useTestStorage points the global DB at a fresh in-memory database.
func useTestStorage(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.Conversation{}, &models.Message{}, &models.User{}, &models.Listing{},
		&models.Booking{}, &models.DepositAudit{}, &models.Payment{}, &models.Wallet{},
		&models.WalletTransaction{}, &models.SupportTicket{}, &models.SupportMessage{},
		&models.Notification{}, &models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	storage.DB = db
	return db
}

// buildAdminTestApp creates a minimal Iris app with the admin routes and JWT verifier
func buildAdminTestApp(t *testing.T) *iris.Application {
	t.Helper()
	useTestStorage(t)
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")
	app := iris.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} { return new(utils.AccessToken) })

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/users", AdminListUsers)
		admin.Patch("/users/{id:uint}/role", utils.SuperAdminOnlyMiddleware, AdminChangeUserRole)
	}
	if err := app.Build(); err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app
}

// signTestToken returns a signed JWT with the given identity
func signTestToken(id uint, role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 0)
	token, _ := signer.Sign(utils.AccessToken{ID: id, Role: role})
	return string(token)
}

func TestAdminUsersRBAC(t *testing.T) {
	app := buildAdminTestApp(t)

	// No token
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code == http.StatusOK {
		t.Fatalf("expected non-200 without token, got %d", resp.Code)
	}

	// User role -> 403
	req2 := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req2.Header.Set("Authorization", "Bearer "+signTestToken(1, "user"))
	resp2 := httptest.NewRecorder()
	app.ServeHTTP(resp2, req2)
	if resp2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", resp2.Code)
	}

	// Admin role -> 200 (empty list OK)
	req3 := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req3.Header.Set("Authorization", "Bearer "+signTestToken(1, "admin"))
	resp3 := httptest.NewRecorder()
	app.ServeHTTP(resp3, req3)
	if resp3.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin role, got %d", resp3.Code)
	}
}

func TestRoleChangeRequiresSuperAdmin(t *testing.T) {
	app := buildAdminTestApp(t)

	target := models.User{FirstName: "Dana", LastName: "K", Email: "dana@example.com", Role: "user"}
	storage.DB.Create(&target)

	// Plain admin cannot grant roles.
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/1/role", jsonBody(`{"role":"cs"}`))
	req.Header.Set("Authorization", "Bearer "+signTestToken(2, "admin"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", resp.Code)
	}

	// Super admin can.
	req2 := httptest.NewRequest(http.MethodPatch, "/api/admin/users/1/role", jsonBody(`{"role":"cs"}`))
	req2.Header.Set("Authorization", "Bearer "+signTestToken(2, "super_admin"))
	req2.Header.Set("Content-Type", "application/json")
	resp2 := httptest.NewRecorder()
	app.ServeHTTP(resp2, req2)
	if resp2.Code != http.StatusOK {
		t.Fatalf("expected 200 for super_admin, got %d: %s", resp2.Code, resp2.Body.String())
	}

	var got models.User
	storage.DB.First(&got, target.ID)
	if got.Role != "cs" {
		t.Fatalf("role = %q, want cs", got.Role)
	}

	// Unknown roles are rejected.
	req3 := httptest.NewRequest(http.MethodPatch, "/api/admin/users/1/role", jsonBody(`{"role":"root"}`))
	req3.Header.Set("Authorization", "Bearer "+signTestToken(2, "super_admin"))
	req3.Header.Set("Content-Type", "application/json")
	resp3 := httptest.NewRecorder()
	app.ServeHTTP(resp3, req3)
	if resp3.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp3.Code)
	}
}
