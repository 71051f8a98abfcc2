package utils

import (
	"strconv"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/exp/slices"
)

func UserIDMiddleware(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	claims := jwt.Get(ctx).(*AccessToken)

	userID := strconv.FormatUint(uint64(claims.ID), 10)

	if userID != id {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	ctx.Next()
}

// UserIDFromTokenMiddleware extracts user ID from JWT token and stores it in context
// Use this for routes that don't have {id} parameter in URL
func UserIDFromTokenMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	ctx.Values().Set("userID", claims.ID)
	ctx.Values().Set("role", claims.Role)
	ctx.Next()
}

// AdminOnlyMiddleware ensures the requester has admin or super_admin role
func AdminOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	role := claims.Role
	if role != "admin" && role != "super_admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "admin access required"})
		return
	}
	// Ensure userID is available to downstream handlers
	ctx.Values().Set("userID", claims.ID)
	ctx.Next()
}

// SuperAdminOnlyMiddleware ensures only super admins can access
func SuperAdminOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if claims.Role != "super_admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "super_admin access required"})
		return
	}
	ctx.Next()
}

// StaffOnlyMiddleware admits any back-office role
func StaffOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if !slices.Contains(models.StaffRoles, claims.Role) {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "staff access required"})
		return
	}
	ctx.Values().Set("userID", claims.ID)
	ctx.Values().Set("role", claims.Role)
	ctx.Next()
}

// queueRoles maps a support queue to the roles allowed to work it.
var queueRoles = map[string][]string{
	models.QueueCS:  {"cs", "admin", "super_admin"},
	models.QueueMod: {"moderator", "admin", "super_admin"},
	models.QueueMD:  {"deposit_manager", "admin", "super_admin"},
}

// QueueMiddleware resolves the {queue} path parameter and rejects roles that
// do not work that queue.
func QueueMiddleware(ctx iris.Context) {
	queue := ctx.Params().Get("queue")
	roles, ok := queueRoles[queue]
	if !ok {
		ctx.StatusCode(iris.StatusNotFound)
		ctx.JSON(iris.Map{"error": "not_found", "message": "unknown queue"})
		return
	}

	claims := jwt.Get(ctx).(*AccessToken)
	if !slices.Contains(roles, claims.Role) {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "queue access required"})
		return
	}
	ctx.Values().Set("userID", claims.ID)
	ctx.Values().Set("role", claims.Role)
	ctx.Values().Set("queue", queue)
	ctx.Next()
}

// DepositManagerOnlyMiddleware guards the deposit decision endpoints
func DepositManagerOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	role := claims.Role
	if role != "deposit_manager" && role != "admin" && role != "super_admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "deposit manager access required"})
		return
	}
	ctx.Values().Set("userID", claims.ID)
	ctx.Next()
}

// RobotMiddleware authenticates the external cron scheduler on the sweeper
// endpoints via a shared token header. An empty token locks the endpoints.
func RobotMiddleware(token string) iris.Handler {
	return func(ctx iris.Context) {
		if token == "" || ctx.GetHeader("X-Robot-Token") != token {
			ctx.StatusCode(iris.StatusUnauthorized)
			ctx.JSON(iris.Map{"error": "unauthorized"})
			return
		}
		ctx.Next()
	}
}
