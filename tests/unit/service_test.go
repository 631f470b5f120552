package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/application"
	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

func TestRegisterEmitsAccountRegistered(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	res, err := f.service.Register(ctx, application.RegisterRequest{
		Email:     "user@example.com",
		Password:  "SecurePass123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, "idem-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.User.AccountID == uuid.Nil {
		t.Fatalf("register returned empty account id")
	}
	if res.Token == "" {
		t.Fatalf("register returned empty token")
	}
	if res.User.Role != domain.RoleUser {
		t.Fatalf("expected role %s, got %s", domain.RoleUser, res.User.Role)
	}

	if len(f.accounts.events) == 0 {
		t.Fatalf("expected outbox event for registration")
	}
	lastEvent := f.accounts.events[len(f.accounts.events)-1]
	if lastEvent.EventType != "account.registered" {
		t.Fatalf("expected account.registered event, got %s", lastEvent.EventType)
	}

	var payload map[string]any
	if err := json.Unmarshal(lastEvent.Payload, &payload); err != nil {
		t.Fatalf("invalid account.registered payload: %v", err)
	}
	if _, ok := payload["registered_at"]; !ok {
		t.Fatalf("expected registered_at in account.registered payload")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	mustRegister(t, f, "dup@example.com")

	_, err := f.service.Register(ctx, application.RegisterRequest{
		Email:     "Dup@Example.com",
		Password:  "SecurePass123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	for _, password := range []string{"short1!", "alllowercase123!", "NoDigitsHere!", "NoSymbols1234"} {
		_, err := f.service.Register(ctx, application.RegisterRequest{
			Email:     "weak@example.com",
			Password:  password,
			FirstName: "Ada",
			LastName:  "Lovelace",
		}, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", password, err)
		}
	}
}

func TestLoginSuccessResetsGuard(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "reset@example.com")

	for i := 0; i < 3; i++ {
		if _, err := f.service.Login(ctx, application.LoginRequest{
			Email:    "reset@example.com",
			Password: "WrongPass123!",
		}); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if got := f.accounts.guardOf(reg.User.AccountID).FailedAttempts(); got != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", got)
	}

	res, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "reset@example.com",
		Password: "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.LastLoginAt == nil {
		t.Fatalf("expected last_login_at to be stamped")
	}
	if got := f.accounts.guardOf(reg.User.AccountID).FailedAttempts(); got != 0 {
		t.Fatalf("expected counter reset after success, got %d", got)
	}
}

func TestLoginUnknownEmailHidesExistence(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "ghost@example.com",
		Password: "SecurePass123!",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	mustRegister(t, f, "locked@example.com")

	for i := 0; i < 4; i++ {
		if _, err := f.service.Login(ctx, application.LoginRequest{
			Email:    "locked@example.com",
			Password: "WrongPass123!",
		}); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	_, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "locked@example.com",
		Password: "WrongPass123!",
	})
	var locked *domain.AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected lockout on threshold attempt, got %v", err)
	}
	if locked.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", locked.RetryAfter)
	}

	// The correct password no longer helps while the lock holds.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "locked@example.com",
		Password: "SecurePass123!",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected locked account to reject correct password, got %v", err)
	}
}

func TestExpiredLockRestartsCounter(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "expired@example.com")
	f.accounts.setGuard(reg.User.AccountID, domain.LockedGuard(time.Now().UTC().Add(-time.Minute)))

	_, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "expired@example.com",
		Password: "WrongPass123!",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected plain credential failure after lock expiry, got %v", err)
	}
	if got := f.accounts.guardOf(reg.User.AccountID).FailedAttempts(); got != 1 {
		t.Fatalf("expected counter to restart at 1 after expired lock, got %d", got)
	}
}

func TestPasswordChangeInvalidatesOlderTokens(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	mustRegister(t, f, "rotate@example.com")
	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "rotate@example.com",
		Password: "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	f.signer.backdate(loginRes.Token, time.Hour)

	account, err := f.service.Authenticate(ctx, loginRes.Token)
	if err != nil {
		t.Fatalf("authenticate before change failed: %v", err)
	}

	if err := f.service.ChangePassword(ctx, account, application.ChangePasswordRequest{
		CurrentPassword: "SecurePass123!",
		NewPassword:     "EvenStronger456!",
	}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := f.service.Authenticate(ctx, loginRes.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected stale token to be rejected, got %v", err)
	}

	fresh, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "rotate@example.com",
		Password: "EvenStronger456!",
	})
	if err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := f.service.Authenticate(ctx, fresh.Token); err != nil {
		t.Fatalf("fresh token should authenticate: %v", err)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "current@example.com")
	account, err := f.service.Authenticate(ctx, reg.Token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	err = f.service.ChangePassword(ctx, account, application.ChangePasswordRequest{
		CurrentPassword: "WrongPass123!",
		NewPassword:     "EvenStronger456!",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginHistoryRecordsOutcomes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "history@example.com")

	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:     "history@example.com",
		Password:  "WrongPass123!",
		IPAddress: "203.0.113.9",
	}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "history@example.com",
		Password: "SecurePass123!",
	}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	items, err := f.service.LoginHistory(ctx, reg.User.AccountID, 1, 20)
	if err != nil {
		t.Fatalf("login history failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 history items, got %d", len(items))
	}
	if items[0].Status != "SUCCESS" {
		t.Fatalf("expected newest item SUCCESS, got %s", items[0].Status)
	}
	if items[1].Status != "FAILED" || items[1].FailureReason != "INVALID_PASSWORD" {
		t.Fatalf("expected FAILED/INVALID_PASSWORD, got %s/%s", items[1].Status, items[1].FailureReason)
	}
	if items[1].IPAddress != "203.0.113.9" {
		t.Fatalf("expected recorded ip, got %q", items[1].IPAddress)
	}
}

func TestAddCartLineMergesAndKeepsPriceSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "cart@example.com")
	product := f.seedProduct("Mechanical Keyboard", 12500, 10)

	if _, err := f.service.AddCartLine(ctx, reg.User.AccountID, application.AddCartLineRequest{
		ProductID: product.ProductID,
		Quantity:  2,
	}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}

	// A later catalog price change must not move existing lines.
	f.products.setPrice(product.ProductID, 19900)

	cart, err := f.service.AddCartLine(ctx, reg.User.AccountID, application.AddCartLineRequest{
		ProductID: product.ProductID,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", cart.Lines[0].Quantity)
	}
	if cart.Lines[0].UnitPriceCents != 12500 {
		t.Fatalf("expected original price snapshot 12500, got %d", cart.Lines[0].UnitPriceCents)
	}
	if cart.TotalCents != 62500 {
		t.Fatalf("expected total 62500, got %d", cart.TotalCents)
	}
}

func TestAddCartLineRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "inactive@example.com")
	product := f.seedProduct("Discontinued Mouse", 3000, 4)
	if err := f.service.DeactivateProduct(ctx, product.ProductID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err := f.service.AddCartLine(ctx, reg.User.AccountID, application.AddCartLineRequest{
		ProductID: product.ProductID,
		Quantity:  1,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for inactive product, got %v", err)
	}
}

func TestAddCartLineInsufficientStock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "stock@example.com")
	product := f.seedProduct("Limited Headset", 8000, 1)

	_, err := f.service.AddCartLine(ctx, reg.User.AccountID, application.AddCartLineRequest{
		ProductID: product.ProductID,
		Quantity:  2,
	})
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if insufficient.ProductName != "Limited Headset" {
		t.Fatalf("expected error to name the product, got %q", insufficient.ProductName)
	}
}

func TestSetCartLineQuantityMissingLine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "missing@example.com")
	product := f.seedProduct("Webcam", 4500, 10)

	_, err := f.service.SetCartLineQuantity(ctx, reg.User.AccountID, product.ProductID, 3)
	if !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected line not found, got %v", err)
	}
}

func TestRemoveCartLineAbsentIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "noop@example.com")
	product := f.seedProduct("USB Hub", 2500, 10)

	cart, err := f.service.RemoveCartLine(ctx, reg.User.AccountID, product.ProductID)
	if err != nil {
		t.Fatalf("expected removing absent line to succeed, got %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
}

func TestConcurrentAddsMergeIntoOneLine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "race@example.com")
	product := f.seedProduct("Monitor Arm", 7000, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.AddCartLine(ctx, reg.User.AccountID, application.AddCartLineRequest{
				ProductID: product.ProductID,
				Quantity:  1,
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent add %d failed: %v", i, err)
		}
	}

	cart, err := f.service.GetCart(ctx, reg.User.AccountID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected merged quantity 2, got %d", cart.Lines[0].Quantity)
	}
}

func TestPlaceOrderSnapshotsCartAndClearsIt(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "checkout@example.com")
	keyboard := f.seedProduct("Keyboard", 12500, 10)
	mouse := f.seedProduct("Mouse", 3000, 5)

	addToCart(t, f, reg.User.AccountID, keyboard.ProductID, 2)
	addToCart(t, f, reg.User.AccountID, mouse.ProductID, 1)

	order, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "order-key-1")
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if order.OrderID == uuid.Nil {
		t.Fatalf("expected order id")
	}
	if order.TotalCents != 2*12500+3000 {
		t.Fatalf("expected total %d, got %d", 2*12500+3000, order.TotalCents)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}

	if got := f.products.stockOf(keyboard.ProductID); got != 8 {
		t.Fatalf("expected keyboard stock 8, got %d", got)
	}
	if got := f.products.stockOf(mouse.ProductID); got != 4 {
		t.Fatalf("expected mouse stock 4, got %d", got)
	}

	cart, err := f.service.GetCart(ctx, reg.User.AccountID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected drained cart, got %d lines", len(cart.Lines))
	}

	if len(f.orders.events) == 0 {
		t.Fatalf("expected outbox event for order placement")
	}
	if got := f.orders.events[len(f.orders.events)-1].EventType; got != "order.placed" {
		t.Fatalf("expected order.placed event, got %s", got)
	}

	listed, err := f.service.ListOrders(ctx, reg.User.AccountID, 1, 20)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(listed) != 1 || listed[0].OrderID != order.OrderID {
		t.Fatalf("expected placed order in listing")
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "empty@example.com")

	_, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "")
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestPlaceOrderInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "atomic@example.com")
	plenty := f.seedProduct("Plenty", 1000, 100)
	scarce := f.seedProduct("Scarce", 2000, 3)

	addToCart(t, f, reg.User.AccountID, plenty.ProductID, 2)
	addToCart(t, f, reg.User.AccountID, scarce.ProductID, 3)

	// Someone else buys the scarce units between add and checkout.
	f.products.setStock(scarce.ProductID, 1)

	_, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodBankTransfer,
	}, "")
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if insufficient.ProductName != "Scarce" {
		t.Fatalf("expected error to name the scarce product, got %q", insufficient.ProductName)
	}

	if got := f.products.stockOf(plenty.ProductID); got != 100 {
		t.Fatalf("expected no partial reservation, plenty stock = %d", got)
	}
	cart, err := f.service.GetCart(ctx, reg.User.AccountID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart.Lines) != 2 {
		t.Fatalf("expected cart preserved after failed checkout, got %d lines", len(cart.Lines))
	}
}

func TestPlaceOrderIdempotencyKeyReuse(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "idem@example.com")
	product := f.seedProduct("Speaker", 9000, 10)
	addToCart(t, f, reg.User.AccountID, product.ProductID, 1)

	if _, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	}, "order-key-reuse"); err != nil {
		t.Fatalf("first place order failed: %v", err)
	}

	addToCart(t, f, reg.User.AccountID, product.ProductID, 1)
	_, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	}, "order-key-reuse")
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestGetOrderHidesOtherAccounts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	owner := mustRegister(t, f, "owner@example.com")
	other := mustRegister(t, f, "other@example.com")
	product := f.seedProduct("Lamp", 4000, 10)
	addToCart(t, f, owner.User.AccountID, product.ProductID, 1)

	order, err := f.service.PlaceOrder(ctx, owner.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "")
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if _, err := f.service.GetOrder(ctx, other.User.AccountID, order.OrderID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if _, err := f.service.GetOrder(ctx, owner.User.AccountID, order.OrderID); err != nil {
		t.Fatalf("owner should see own order: %v", err)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		steps   []domain.OrderStatus
		wantErr bool
	}{
		{name: "pending to processing", steps: []domain.OrderStatus{domain.OrderStatusProcessing}},
		{name: "full happy path", steps: []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered}},
		{name: "pending to shipped skips processing", steps: []domain.OrderStatus{domain.OrderStatusShipped}, wantErr: true},
		{name: "backwards from processing", steps: []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusPending}, wantErr: true},
		{name: "delivered is terminal", steps: []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled}, wantErr: true},
		{name: "shipped cannot cancel", steps: []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusCancelled}, wantErr: true},
	}

	for i, tc := range cases {
		tc := tc
		i := i
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			ctx := context.Background()

			reg := mustRegister(t, f, fmt.Sprintf("transition%d@example.com", i))
			product := f.seedProduct("Desk", 30000, 10)
			addToCart(t, f, reg.User.AccountID, product.ProductID, 1)
			order, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
				ShippingAddress: testAddress(),
				PaymentMethod:   domain.PaymentMethodCreditCard,
			}, "")
			if err != nil {
				t.Fatalf("place order failed: %v", err)
			}

			var lastErr error
			for _, next := range tc.steps {
				_, lastErr = f.service.UpdateOrderStatus(ctx, order.OrderID, next)
				if lastErr != nil {
					break
				}
			}
			if tc.wantErr {
				if !errors.Is(lastErr, domain.ErrInvalidTransition) {
					t.Fatalf("expected invalid transition, got %v", lastErr)
				}
				return
			}
			if lastErr != nil {
				t.Fatalf("expected transitions to succeed, got %v", lastErr)
			}
		})
	}
}

func TestCancelledOrderRestocks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "cancel@example.com")
	product := f.seedProduct("Chair", 15000, 10)
	addToCart(t, f, reg.User.AccountID, product.ProductID, 3)

	order, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "")
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if got := f.products.stockOf(product.ProductID); got != 7 {
		t.Fatalf("expected stock 7 after checkout, got %d", got)
	}

	cancelled, err := f.service.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if got := f.products.stockOf(product.ProductID); got != 10 {
		t.Fatalf("expected restock to 10, got %d", got)
	}

	if _, err := f.service.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusProcessing); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected cancelled to be terminal, got %v", err)
	}
}

func TestPaymentSettlementIsFinal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "payment@example.com")
	product := f.seedProduct("Shelf", 6000, 10)
	addToCart(t, f, reg.User.AccountID, product.ProductID, 1)

	order, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodBankTransfer,
	}, "")
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	paid, err := f.service.UpdatePaymentStatus(ctx, order.OrderID, domain.PaymentStatusPaid)
	if err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}
	if paid.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", paid.PaymentStatus)
	}

	if _, err := f.service.UpdatePaymentStatus(ctx, order.OrderID, domain.PaymentStatusFailed); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected settled payment to be final, got %v", err)
	}
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	first := mustRegister(t, f, "race1@example.com")
	second := mustRegister(t, f, "race2@example.com")
	product := f.seedProduct("Last Unit", 9900, 1)
	addToCart(t, f, first.User.AccountID, product.ProductID, 1)
	addToCart(t, f, second.User.AccountID, product.ProductID, 1)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, accountID := range []uuid.UUID{first.User.AccountID, second.User.AccountID} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.service.PlaceOrder(ctx, id, application.PlaceOrderRequest{
				ShippingAddress: testAddress(),
				PaymentMethod:   domain.PaymentMethodCreditCard,
			}, "")
			results <- err
		}(accountID)
	}
	wg.Wait()
	close(results)

	var won, outOfStock int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected checkout error: %v", err)
		}
		outOfStock++
	}
	if won != 1 || outOfStock != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d stock failures", won, outOfStock)
	}
	if got := f.products.stockOf(product.ProductID); got != 0 {
		t.Fatalf("expected stock 0 after the race, got %d", got)
	}
}

func TestCancelledOrderRestocksEveryLine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "multicancel@example.com")
	chair := f.seedProduct("Chair", 15000, 10)
	lamp := f.seedProduct("Lamp", 4000, 6)
	addToCart(t, f, reg.User.AccountID, chair.ProductID, 2)
	addToCart(t, f, reg.User.AccountID, lamp.ProductID, 5)

	order, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "")
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if _, err := f.service.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got := f.products.stockOf(chair.ProductID); got != 10 {
		t.Fatalf("expected chair restocked to 10, got %d", got)
	}
	if got := f.products.stockOf(lamp.ProductID); got != 6 {
		t.Fatalf("expected lamp restocked to 6, got %d", got)
	}
}

func TestIdempotencyKeyExpiryFollowsConfig(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "ttl@example.com")
	product := f.seedProduct("Desk", 9000, 5)
	addToCart(t, f, reg.User.AccountID, product.ProductID, 1)

	before := time.Now().UTC()
	if _, err := f.service.PlaceOrder(ctx, reg.User.AccountID, application.PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	}, "ttl-key"); err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	rec, err := f.idem.Get(ctx, "ttl-key")
	if err != nil || rec == nil {
		t.Fatalf("expected idempotency record, got %v, %v", rec, err)
	}
	ttl := rec.ExpiresAt.Sub(before)
	if ttl < fixtureIdempotencyTTL-time.Minute || ttl > fixtureIdempotencyTTL+time.Minute {
		t.Fatalf("expected key to expire after about %v, got %v", fixtureIdempotencyTTL, ttl)
	}
}

func TestGetCartCreatesStampedCart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	reg := mustRegister(t, f, "cartclock@example.com")

	before := time.Now().UTC()
	view, err := f.service.GetCart(ctx, reg.User.AccountID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(view.Lines) != 0 || view.TotalCents != 0 {
		t.Fatalf("expected empty cart, got %+v", view)
	}

	f.carts.mu.Lock()
	cart := f.carts.byAccount[reg.User.AccountID]
	f.carts.mu.Unlock()
	if cart.CreatedAt.Before(before) || cart.CreatedAt.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("expected cart stamped with the service clock, got %v", cart.CreatedAt)
	}
}

func mustRegister(t *testing.T, f *fixture, email string) application.AuthResponse {
	t.Helper()
	res, err := f.service.Register(context.Background(), application.RegisterRequest{
		Email:     email,
		Password:  "SecurePass123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, "")
	if err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
	return res
}

func addToCart(t *testing.T, f *fixture, accountID, productID uuid.UUID, quantity int) {
	t.Helper()
	if _, err := f.service.AddCartLine(context.Background(), accountID, application.AddCartLineRequest{
		ProductID: productID,
		Quantity:  quantity,
	}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Address:    "1 Example Street",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

func newFixture() *fixture {
	accounts := &fakeAccounts{
		byEmail: map[string]domain.Account{},
		byID:    map[uuid.UUID]domain.Account{},
	}
	attempts := &fakeLoginAttempts{}
	products := &fakeProducts{byID: map[uuid.UUID]domain.Product{}}
	carts := &fakeCarts{byAccount: map[uuid.UUID]domain.Cart{}, products: products}
	orders := &fakeOrders{byID: map[uuid.UUID]domain.Order{}, carts: carts, products: products}
	idem := &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}}
	signer := &fakeSigner{tokens: map[string]ports.AuthClaims{}}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			TokenTTL:             24 * time.Hour,
			FailedLoginThreshold: 5,
			LockoutDuration:      30 * time.Minute,
			IdempotencyKeyTTL:    fixtureIdempotencyTTL,
		},
		Accounts:      accounts,
		LoginAttempts: attempts,
		Products:      products,
		Carts:         carts,
		Orders:        orders,
		Idempotency:   idem,
		Hasher:        &fakeHasher{},
		TokenSigner:   signer,
	})

	return &fixture{
		service:  svc,
		accounts: accounts,
		attempts: attempts,
		products: products,
		carts:    carts,
		orders:   orders,
		idem:     idem,
		signer:   signer,
	}
}

const fixtureIdempotencyTTL = 48 * time.Hour

type fixture struct {
	service  *application.Service
	accounts *fakeAccounts
	attempts *fakeLoginAttempts
	products *fakeProducts
	carts    *fakeCarts
	orders   *fakeOrders
	idem     *fakeIdempotency
	signer   *fakeSigner
}

func (f *fixture) seedProduct(name string, priceCents int64, stock int) domain.Product {
	now := time.Now().UTC()
	product := domain.Product{
		ProductID:   uuid.New(),
		Name:        name,
		Description: name + " description",
		PriceCents:  priceCents,
		Stock:       stock,
		Category:    "test",
		Images:      []string{"https://img.example.com/" + name},
		IsActive:    true,
		CreatedBy:   uuid.New(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.products.put(product)
	return product
}

type fakeAccounts struct {
	mu      sync.Mutex
	byEmail map[string]domain.Account
	byID    map[uuid.UUID]domain.Account
	events  []ports.OutboxEvent
}

func (f *fakeAccounts) CreateWithOutboxTx(_ context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[params.Email]; ok {
		return domain.Account{}, domain.ErrConflict
	}
	a := domain.Account{
		AccountID:    uuid.New(),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         params.Role,
		IsActive:     true,
		Guard:        domain.OpenGuard(0),
		CreatedAt:    params.RegisteredAt,
		UpdatedAt:    params.RegisteredAt,
	}
	f.byEmail[a.Email] = a
	f.byID[a.AccountID] = a
	f.events = append(f.events, outboxEvent)
	return a, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byEmail[email]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) RecordLoginFailure(_ context.Context, accountID uuid.UUID, now time.Time, threshold int, lockFor time.Duration) (domain.GuardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.GuardState{}, domain.ErrNotFound
	}
	a.Guard = a.Guard.Fail(now, threshold, lockFor)
	a.UpdatedAt = now
	f.store(a)
	return a.Guard, nil
}

func (f *fakeAccounts) RecordLoginSuccess(_ context.Context, accountID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Guard = a.Guard.Succeed()
	a.LastLoginAt = &now
	a.UpdatedAt = now
	f.store(a)
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, accountID uuid.UUID, passwordHash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = &changedAt
	a.UpdatedAt = changedAt
	f.store(a)
	return nil
}

func (f *fakeAccounts) store(a domain.Account) {
	f.byID[a.AccountID] = a
	f.byEmail[a.Email] = a
}

func (f *fakeAccounts) guardOf(accountID uuid.UUID) domain.GuardState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[accountID].Guard
}

func (f *fakeAccounts) setGuard(accountID uuid.UUID, state domain.GuardState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID[accountID]
	a.Guard = state
	f.store(a)
}

type fakeLoginAttempts struct {
	mu      sync.Mutex
	records []ports.LoginAttemptRecord
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt ports.LoginAttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.ID = int64(len(f.records) + 1)
	f.records = append(f.records, attempt)
	return nil
}

func (f *fakeLoginAttempts) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]ports.LoginAttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []ports.LoginAttemptRecord
	for _, rec := range f.records {
		if rec.AccountID != nil && *rec.AccountID == accountID {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type fakeProducts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Product
}

func (f *fakeProducts) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[product.ProductID] = product
	return product, nil
}

func (f *fakeProducts) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[product.ProductID]; !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	f.byID[product.ProductID] = product
	return product, nil
}

func (f *fakeProducts) Deactivate(_ context.Context, productID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = false
	p.UpdatedAt = at
	f.byID[productID] = p
	return nil
}

func (f *fakeProducts) GetByID(_ context.Context, productID uuid.UUID) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[productID]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) List(_ context.Context, filter ports.ProductFilter) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.Product
	for _, p := range f.byID {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (f *fakeProducts) put(product domain.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[product.ProductID] = product
}

func (f *fakeProducts) setPrice(productID uuid.UUID, priceCents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID[productID]
	p.PriceCents = priceCents
	f.byID[productID] = p
}

func (f *fakeProducts) setStock(productID uuid.UUID, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID[productID]
	p.Stock = stock
	f.byID[productID] = p
}

func (f *fakeProducts) stockOf(productID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[productID].Stock
}

type fakeCarts struct {
	mu        sync.Mutex
	byAccount map[uuid.UUID]domain.Cart
	products  *fakeProducts
}

func (f *fakeCarts) GetOrCreate(_ context.Context, accountID uuid.UUID, at time.Time) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyCart(f.getOrCreateLocked(accountID, at)), nil
}

func (f *fakeCarts) UpsertLine(_ context.Context, accountID, productID uuid.UUID, quantityDelta int, unitPriceCents int64, at time.Time) (domain.Cart, error) {
	product, err := f.products.GetByID(context.Background(), productID)
	if err != nil {
		return domain.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.getOrCreateLocked(accountID, at)
	merged := false
	for i, line := range cart.Lines {
		if line.ProductID == productID {
			cart.Lines[i].Quantity += quantityDelta
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:      productID,
			ProductName:    product.Name,
			Quantity:       quantityDelta,
			UnitPriceCents: unitPriceCents,
			AddedAt:        at,
		})
	}
	cart.UpdatedAt = at
	f.byAccount[accountID] = cart
	return copyCart(cart), nil
}

func (f *fakeCarts) SetLineQuantity(_ context.Context, accountID, productID uuid.UUID, quantity int, at time.Time) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.getOrCreateLocked(accountID, at)
	for i, line := range cart.Lines {
		if line.ProductID == productID {
			cart.Lines[i].Quantity = quantity
			cart.UpdatedAt = at
			f.byAccount[accountID] = cart
			return copyCart(cart), nil
		}
	}
	return domain.Cart{}, domain.ErrLineNotFound
}

func (f *fakeCarts) RemoveLine(_ context.Context, accountID, productID uuid.UUID, at time.Time) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.getOrCreateLocked(accountID, at)
	next := cart.Lines[:0]
	for _, line := range cart.Lines {
		if line.ProductID != productID {
			next = append(next, line)
		}
	}
	cart.Lines = next
	cart.UpdatedAt = at
	f.byAccount[accountID] = cart
	return copyCart(cart), nil
}

func (f *fakeCarts) getOrCreateLocked(accountID uuid.UUID, at time.Time) domain.Cart {
	cart, ok := f.byAccount[accountID]
	if !ok {
		cart = domain.Cart{
			CartID:    uuid.New(),
			AccountID: accountID,
			CreatedAt: at,
			UpdatedAt: at,
		}
		f.byAccount[accountID] = cart
	}
	return cart
}

func copyCart(cart domain.Cart) domain.Cart {
	cart.Lines = append([]domain.CartLine(nil), cart.Lines...)
	return cart
}

type fakeOrders struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]domain.Order
	events   []ports.OutboxEvent
	carts    *fakeCarts
	products *fakeProducts
}

func (f *fakeOrders) PlaceFromCartTx(_ context.Context, params ports.PlaceOrderParams, outboxEvent ports.OutboxEvent) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts.mu.Lock()
	defer f.carts.mu.Unlock()
	f.products.mu.Lock()
	defer f.products.mu.Unlock()

	cart, ok := f.carts.byAccount[params.AccountID]
	if !ok || len(cart.Lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}

	lines := append([]domain.CartLine(nil), cart.Lines...)
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
	})

	for _, line := range lines {
		p, ok := f.products.byID[line.ProductID]
		if !ok || !p.IsActive {
			return domain.Order{}, domain.ErrNotFound
		}
		if p.Stock < line.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{ProductName: p.Name}
		}
	}
	for _, line := range lines {
		p := f.products.byID[line.ProductID]
		p.Stock -= line.Quantity
		f.products.byID[line.ProductID] = p
	}

	items := make([]domain.OrderItem, 0, len(lines))
	var total int64
	for _, line := range lines {
		items = append(items, domain.OrderItem{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
		total += line.UnitPriceCents * int64(line.Quantity)
	}

	order := domain.Order{
		OrderID:         uuid.New(),
		AccountID:       params.AccountID,
		Items:           items,
		TotalCents:      total,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: params.ShippingAddress,
		PaymentMethod:   params.PaymentMethod,
		CreatedAt:       params.PlacedAt,
		UpdatedAt:       params.PlacedAt,
	}
	f.byID[order.OrderID] = order
	f.events = append(f.events, outboxEvent)

	cart.Lines = nil
	cart.UpdatedAt = params.PlacedAt
	f.carts.byAccount[params.AccountID] = cart

	return order, nil
}

func (f *fakeOrders) GetByID(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.byID[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrders) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.Order
	for _, order := range f.byID {
		if order.AccountID == accountID {
			matched = append(matched, order)
		}
	}
	return pageOrders(matched, limit, offset), nil
}

func (f *fakeOrders) ListAll(_ context.Context, limit, offset int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.Order, 0, len(f.byID))
	for _, order := range f.byID {
		matched = append(matched, order)
	}
	return pageOrders(matched, limit, offset), nil
}

func (f *fakeOrders) UpdateStatusTx(_ context.Context, orderID uuid.UUID, next domain.OrderStatus, at time.Time) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.byID[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !order.Status.CanTransition(next) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, order.Status, next)
	}
	if next == domain.OrderStatusCancelled {
		f.products.mu.Lock()
		for _, item := range order.Items {
			p := f.products.byID[item.ProductID]
			p.Stock += item.Quantity
			f.products.byID[item.ProductID] = p
		}
		f.products.mu.Unlock()
	}
	order.Status = next
	order.UpdatedAt = at
	f.byID[orderID] = order
	return order, nil
}

func (f *fakeOrders) UpdatePaymentStatusTx(_ context.Context, orderID uuid.UUID, next domain.PaymentStatus, at time.Time) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.byID[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !order.PaymentStatus.CanTransition(next) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, order.PaymentStatus, next)
	}
	order.PaymentStatus = next
	order.UpdatedAt = at
	f.byID[orderID] = order
	return order, nil
}

func pageOrders(orders []domain.Order, limit, offset int) []domain.Order {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if offset >= len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[key]; ok {
		return domain.ErrConflict
	}
	f.records[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      "PENDING",
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.records[key]
	v.Status = "COMPLETED"
	v.ResponseCode = responseCode
	v.ResponseBody = responseBody
	v.UpdatedAt = at
	f.records[key] = v
	return nil
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (f *fakeSigner) Sign(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

// backdate shifts a token's issue time into the past so invalidation rules
// can be exercised without sleeping.
func (f *fakeSigner) backdate(token string, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims := f.tokens[token]
	claims.IssuedAt = claims.IssuedAt.Add(-by)
	f.tokens[token] = claims
}
