package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// buildBookingTestApp wires the booking routes against in-memory storage and
// real services (wallet processor only, no card gateway).
func buildBookingTestApp(t *testing.T) (*iris.Application, *services.PaymentService) {
	t.Helper()
	db := useTestStorage(t)
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")

	notifier := services.NewNotificationService(db, nil)
	paymentService := services.NewPaymentService(db, nil, "cad")
	depositService := services.NewDepositService(db, paymentService, notifier, 48*time.Hour, 24*time.Hour)
	supportService := services.NewSupportService(db, notifier)
	InitServices(notifier, paymentService, depositService, supportService)

	app := iris.New()
	app.Validator = validator.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} { return new(utils.AccessToken) })

	booking := app.Party("/api/booking", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		booking.Post("/", CreateBooking)
		booking.Get("/{id:uint}", GetBooking)
		booking.Post("/{id:uint}/accept", AcceptBooking)
		booking.Post("/{id:uint}/decline", DeclineBooking)
		booking.Post("/{id:uint}/pay", PayBooking)
		booking.Post("/{id:uint}/pickup", ConfirmPickup)
		booking.Post("/{id:uint}/return", ConfirmReturn)
		booking.Post("/{id:uint}/deposit/report", ReportDepositIssue)
	}
	if err := app.Build(); err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app, paymentService
}

func seedMarketplace(t *testing.T) (renter, owner models.User, listing models.Listing) {
	t.Helper()
	verified := true
	renter = models.User{FirstName: "Rina", LastName: "T", Email: "rina@example.com", PhoneNumber: "15145550001", IsVerified: &verified, VerificationStatus: "approved"}
	owner = models.User{FirstName: "Omar", LastName: "B", Email: "omar@example.com", PhoneNumber: "15145550002", IsVerified: &verified, VerificationStatus: "approved"}
	storage.DB.Create(&renter)
	storage.DB.Create(&owner)

	listing = models.Listing{
		OwnerID:       owner.ID,
		Title:         "DSLR camera",
		Category:      "electronics",
		City:          "Montreal",
		DailyPrice:    20,
		DepositAmount: 100,
		Status:        "active",
	}
	storage.DB.Create(&listing)
	return renter, owner, listing
}

func doJSON(t *testing.T, app *iris.Application, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = jsonBody(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func TestBookingWalletFlow(t *testing.T) {
	app, paymentService := buildBookingTestApp(t)
	renter, owner, listing := seedMarketplace(t)

	renterToken := signTestToken(renter.ID, "user")
	ownerToken := signTestToken(owner.ID, "user")

	start := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	end := time.Now().AddDate(0, 0, 10).Format("2006-01-02")

	// Request
	resp := doJSON(t, app, http.MethodPost, "/api/booking", renterToken,
		fmt.Sprintf(`{"listingID":%d,"startDate":%q,"endDate":%q}`, listing.ID, start, end))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create booking: %d %s", resp.Code, resp.Body.String())
	}
	var created models.Booking
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if created.RentalAmount != 60 || created.DepositAmount != 100 {
		t.Fatalf("amounts = %.2f/%.2f, want 60/100", created.RentalAmount, created.DepositAmount)
	}

	bookingPath := fmt.Sprintf("/api/booking/%d", created.ID)

	// Renter may not accept their own request.
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/accept", renterToken, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("renter accept: %d", resp.Code)
	}
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/accept", ownerToken, ""); resp.Code != http.StatusOK {
		t.Fatalf("owner accept: %d %s", resp.Code, resp.Body.String())
	}

	// Paying without funds fails and leaves the booking accepted.
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/pay", renterToken, `{"method":"wallet"}`); resp.Code != http.StatusPaymentRequired {
		t.Fatalf("broke pay: %d %s", resp.Code, resp.Body.String())
	}

	if err := paymentService.TopUpWallet(renter.ID, 200, "chrg_test"); err != nil {
		t.Fatalf("topup: %v", err)
	}
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/pay", renterToken, `{"method":"wallet"}`); resp.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", resp.Code, resp.Body.String())
	}

	var paid models.Booking
	storage.DB.First(&paid, created.ID)
	if paid.Status != models.BookingPaid || paid.DepositStatus != models.DepositHeld {
		t.Fatalf("after pay: %q/%q", paid.Status, paid.DepositStatus)
	}
	if !strings.HasPrefix(paid.DepositHoldRef, "wallet:") {
		t.Fatalf("hold ref = %q", paid.DepositHoldRef)
	}

	// Pickup and return, owner side.
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/pickup", ownerToken, ""); resp.Code != http.StatusOK {
		t.Fatalf("pickup: %d", resp.Code)
	}
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/return", ownerToken, ""); resp.Code != http.StatusOK {
		t.Fatalf("return: %d", resp.Code)
	}

	var returned models.Booking
	storage.DB.First(&returned, created.ID)
	if returned.Status != models.BookingReturned || returned.DepositStatus != models.DepositHeld {
		t.Fatalf("after return: %q/%q", returned.Status, returned.DepositStatus)
	}
	if returned.DisputeDeadline == nil {
		t.Fatal("no dispute deadline after return")
	}

	// Owner files a damage report inside the window.
	if resp := doJSON(t, app, http.MethodPost, bookingPath+"/deposit/report", ownerToken, `{"note":"scratch on the lens"}`); resp.Code != http.StatusOK {
		t.Fatalf("report: %d %s", resp.Code, resp.Body.String())
	}
	storage.DB.First(&returned, created.ID)
	if returned.DepositStatus != models.DepositInDispute {
		t.Fatalf("after report: %q", returned.DepositStatus)
	}
}

func TestBookingRequiresVerifiedRenter(t *testing.T) {
	app, _ := buildBookingTestApp(t)
	_, _, listing := seedMarketplace(t)

	unverified := models.User{FirstName: "New", LastName: "User", Email: "new@example.com", PhoneNumber: "15145550003"}
	storage.DB.Create(&unverified)

	start := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	end := time.Now().AddDate(0, 0, 9).Format("2006-01-02")
	resp := doJSON(t, app, http.MethodPost, "/api/booking", signTestToken(unverified.ID, "user"),
		fmt.Sprintf(`{"listingID":%d,"startDate":%q,"endDate":%q}`, listing.ID, start, end))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("unverified booking: %d %s", resp.Code, resp.Body.String())
	}
}

func TestBookingDateConflict(t *testing.T) {
	app, _ := buildBookingTestApp(t)
	renter, owner, listing := seedMarketplace(t)

	verified := true
	second := models.User{FirstName: "Sam", LastName: "L", Email: "sam@example.com", PhoneNumber: "15145550004", IsVerified: &verified}
	storage.DB.Create(&second)

	start := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	end := time.Now().AddDate(0, 0, 10).Format("2006-01-02")

	resp := doJSON(t, app, http.MethodPost, "/api/booking", signTestToken(renter.ID, "user"),
		fmt.Sprintf(`{"listingID":%d,"startDate":%q,"endDate":%q}`, listing.ID, start, end))
	if resp.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", resp.Code)
	}
	var first models.Booking
	json.Unmarshal(resp.Body.Bytes(), &first)

	if resp := doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/booking/%d/accept", first.ID), signTestToken(owner.ID, "user"), ""); resp.Code != http.StatusOK {
		t.Fatalf("accept: %d", resp.Code)
	}

	// Overlapping request against an accepted booking is refused.
	resp2 := doJSON(t, app, http.MethodPost, "/api/booking", signTestToken(second.ID, "user"),
		fmt.Sprintf(`{"listingID":%d,"startDate":%q,"endDate":%q}`, listing.ID, start, end))
	if resp2.Code != http.StatusConflict {
		t.Fatalf("overlap booking: %d %s", resp2.Code, resp2.Body.String())
	}
}
