package services_test

import (
	"sync"
	"testing"

	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

func TestCleanAndDecorateNumbers(t *testing.T) {
	cases := []struct {
		in        string
		clean     string
		decorated string
	}{
		{"15551234567@c.us", "15551234567", "15551234567@c.us"},
		{"15551234567", "15551234567", "15551234567@c.us"},
		{"15551234567@g.us", "15551234567", "15551234567@c.us"},
	}

	for _, tc := range cases {
		if got := services.CleanNumber(tc.in); got != tc.clean {
			t.Errorf("CleanNumber(%q) = %q, want %q", tc.in, got, tc.clean)
		}
		if got := services.DecorateNumber(tc.clean); got != tc.decorated {
			t.Errorf("DecorateNumber(%q) = %q, want %q", tc.clean, got, tc.decorated)
		}
	}
}

func TestCanonicalFormIsStableUnderRoundTrips(t *testing.T) {
	phones := []string{"15551234567", "4915770000000", "15551234567@c.us"}
	for _, p := range phones {
		canonical := services.CleanNumber(p)
		roundTripped := services.CleanNumber(services.DecorateNumber(canonical))
		if roundTripped != canonical {
			t.Errorf("round trip changed %q: %q != %q", p, roundTripped, canonical)
		}
		if services.DecorateNumber(services.DecorateNumber(canonical)) != services.DecorateNumber(canonical) {
			t.Errorf("DecorateNumber not idempotent for %q", canonical)
		}
	}
}

func TestResolveCreatesUnseenContactOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	owner, err := store.CreateUser(&models.User{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	resolver := services.NewContactResolver(store)

	contact, err := resolver.Resolve("15559998888@c.us", owner)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if contact.Phone != "15559998888" {
		t.Fatalf("expected canonical phone, got %q", contact.Phone)
	}
	if !contact.IsAutopilot {
		t.Fatal("new contacts must default to autopilot on")
	}
	if contact.Name != "" {
		t.Fatalf("new contacts must have no display name, got %q", contact.Name)
	}

	again, err := resolver.Resolve("15559998888", owner)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if again.ContactID != contact.ContactID {
		t.Fatal("second resolve created a different contact")
	}

	contacts, _ := store.GetContactsByOwner(owner.UserID)
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one contact, got %d", len(contacts))
	}
}

func TestResolveConcurrentUnseenPhone(t *testing.T) {
	store := storage.NewMemoryStore()
	owner, err := store.CreateUser(&models.User{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	resolver := services.NewContactResolver(store)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.Resolve("15559998888@c.us", owner); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Resolve failed: %v", err)
	}

	contacts, _ := store.GetContactsByOwner(owner.UserID)
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one contact after concurrent resolves, got %d", len(contacts))
	}
}

func TestResolveRecreatesDeletedContact(t *testing.T) {
	store := storage.NewMemoryStore()
	owner, err := store.CreateUser(&models.User{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	resolver := services.NewContactResolver(store)

	first, err := resolver.Resolve("15551234567@c.us", owner)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := store.DeleteContact(first.ContactID); err != nil {
		t.Fatalf("DeleteContact failed: %v", err)
	}

	// An inbound message after an admin delete must start a fresh record,
	// not fail forever on the old one's remains.
	recreated, err := resolver.Resolve("15551234567@c.us", owner)
	if err != nil {
		t.Fatalf("Resolve after delete failed: %v", err)
	}
	if recreated.ContactID == first.ContactID {
		t.Fatal("expected a new contact record after delete")
	}
	if recreated.Phone != "15551234567" || !recreated.IsAutopilot {
		t.Fatalf("unexpected recreated contact: %+v", recreated)
	}

	contacts, _ := store.GetContactsByOwner(owner.UserID)
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one contact after recreate, got %d", len(contacts))
	}
}

func TestResolveScopedToOwner(t *testing.T) {
	store := storage.NewMemoryStore()
	alice, _ := store.CreateUser(&models.User{Email: "alice@example.com"})
	bob, _ := store.CreateUser(&models.User{Email: "bob@example.com"})
	resolver := services.NewContactResolver(store)

	a, err := resolver.Resolve("15551234567@c.us", alice)
	if err != nil {
		t.Fatalf("Resolve for alice failed: %v", err)
	}
	b, err := resolver.Resolve("15551234567@c.us", bob)
	if err != nil {
		t.Fatalf("Resolve for bob failed: %v", err)
	}
	if a.ContactID == b.ContactID {
		t.Fatal("same phone under different owners must be distinct contacts")
	}
}
