package routes

import (
	"context"
	"log"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/kataras/iris/v12"
)

const sweeperLockTTL = 5 * time.Minute

// sweeperLock takes a short Redis lock so overlapping cron invocations never
// run the same sweep concurrently. Returns a release func, or false when
// another run holds the lock.
func sweeperLock(name string) (func(), bool) {
	bg := context.Background()
	ok, err := storage.Redis.SetNX(bg, "lock:"+name, "1", sweeperLockTTL).Result()
	if err != nil {
		log.Printf("robot: lock %s: %v", name, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() { storage.Redis.Del(bg, "lock:"+name) }, true
}

// RobotSweepDeposits executes pending withhold decisions whose renter response
// window has lapsed. Called by the external scheduler.
func RobotSweepDeposits(ctx iris.Context) {
	release, ok := sweeperLock("deposit-sweep")
	if !ok {
		ctx.StatusCode(iris.StatusTooManyRequests)
		ctx.JSON(iris.Map{"error": "locked", "message": "sweep already running"})
		return
	}
	defer release()

	limit := ctx.URLParamIntDefault("limit", 100)
	processed, skipped := deposits.SweepExpired(limit)
	ctx.JSON(iris.Map{"processed": processed, "skipped": skipped})
}

// RobotAutoReleaseDeposits releases held deposits whose owner report window
// passed without a dispute.
func RobotAutoReleaseDeposits(ctx iris.Context) {
	release, ok := sweeperLock("deposit-auto-release")
	if !ok {
		ctx.StatusCode(iris.StatusTooManyRequests)
		ctx.JSON(iris.Map{"error": "locked", "message": "auto-release already running"})
		return
	}
	defer release()

	limit := ctx.URLParamIntDefault("limit", 100)
	processed, skipped := deposits.AutoRelease(limit)
	ctx.JSON(iris.Map{"processed": processed, "skipped": skipped})
}
