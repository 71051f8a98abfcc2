package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kataras/iris/v12"
)

func buildRobotApp(t *testing.T, token string) *iris.Application {
	t.Helper()
	app := iris.New()
	app.Post("/api/robots/ping", RobotMiddleware(token), func(ctx iris.Context) {
		ctx.JSON(iris.Map{"ok": true})
	})
	if err := app.Build(); err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app
}

func TestRobotMiddlewareChecksSharedToken(t *testing.T) {
	app := buildRobotApp(t, "sweep-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/robots/ping", nil)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", resp.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/robots/ping", nil)
	req2.Header.Set("X-Robot-Token", "wrong")
	resp2 := httptest.NewRecorder()
	app.ServeHTTP(resp2, req2)
	if resp2.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", resp2.Code)
	}

	req3 := httptest.NewRequest(http.MethodPost, "/api/robots/ping", nil)
	req3.Header.Set("X-Robot-Token", "sweep-secret")
	resp3 := httptest.NewRecorder()
	app.ServeHTTP(resp3, req3)
	if resp3.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", resp3.Code)
	}
}

func TestRobotMiddlewareLocksOutWhenUnconfigured(t *testing.T) {
	app := buildRobotApp(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/robots/ping", nil)
	req.Header.Set("X-Robot-Token", "")
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("empty configured token: status = %d, want 401", resp.Code)
	}
}
