package records

import (
	"context"
	"errors"
	"testing"

	"github.com/regdesk/regdesk/pkg/models"
)

var testTeams = []Team{
	{Name: "Tigers", AgeGroup: "U10", KitRequired: true},
	{Name: "Panthers", AgeGroup: "U12", KitRequired: false},
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore(testTeams)
	ctx := context.Background()

	record := &models.RegistrationRecord{
		BillingRequestID: "BRQ001",
		ParentFullName:   "Dana Smith",
		PlayerFullName:   "Alex Smith",
		Team:             "Tigers",
		AgeGroup:         "U10",
		Status:           models.StatusPending,
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "BRQ001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ParentFullName != "Dana Smith" {
		t.Fatalf("ParentFullName = %q, want %q", got.ParentFullName, "Dana Smith")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("Save must stamp CreatedAt and UpdatedAt")
	}

	if _, err := store.Get(ctx, "BRQ999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSavePreservesCreatedAt(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	record := &models.RegistrationRecord{BillingRequestID: "BRQ001"}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	first, _ := store.Get(ctx, "BRQ001")

	record.ParentFullName = "Updated"
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, _ := store.Get(ctx, "BRQ001")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("re-saving must keep the original CreatedAt")
	}
	if second.ParentFullName != "Updated" {
		t.Fatal("re-saving must apply the new field values")
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	record := &models.RegistrationRecord{
		BillingRequestID: "BRQ001",
		PaymentMonths:    map[string]string{"2025-09": "paid"},
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _ := store.Get(ctx, "BRQ001")
	got.ParentFullName = "mutated"
	got.PaymentMonths["2025-10"] = "paid"

	again, _ := store.Get(ctx, "BRQ001")
	if again.ParentFullName == "mutated" {
		t.Fatal("mutating a returned record must not affect the store")
	}
	if len(again.PaymentMonths) != 1 {
		t.Fatal("mutating a returned payment map must not affect the store")
	}
}

func TestFindByParentChildCaseInsensitive(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	if err := store.Save(ctx, &models.RegistrationRecord{
		BillingRequestID: "BRQ001",
		ParentFullName:   "Dana Smith",
		PlayerFullName:   "Alex Smith",
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.FindByParentChild(ctx, "dana smith", "ALEX SMITH")
	if err != nil {
		t.Fatalf("FindByParentChild() error = %v", err)
	}
	if got.BillingRequestID != "BRQ001" {
		t.Fatalf("BillingRequestID = %q, want BRQ001", got.BillingRequestID)
	}

	if _, err := store.FindByParentChild(ctx, "Dana Smith", "Sam Smith"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByParentChild(unknown child) error = %v, want ErrNotFound", err)
	}
}

func TestFindActiveSiblings(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	seed := []*models.RegistrationRecord{
		{BillingRequestID: "BRQ001", ParentFullName: "Dana Smith", PlayerFullName: "Alex Smith", Status: models.StatusActive},
		{BillingRequestID: "BRQ002", ParentFullName: "Dana Smith", PlayerFullName: "Jo Smith", Status: models.StatusActive},
		{BillingRequestID: "BRQ003", ParentFullName: "Dana Smith", PlayerFullName: "Kim Smith", Status: models.StatusPending},
		{BillingRequestID: "BRQ004", ParentFullName: "Pat Jones", PlayerFullName: "Lee Smith", Status: models.StatusActive},
	}
	for _, r := range seed {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.BillingRequestID, err)
		}
	}

	got, err := store.FindActiveSiblings(ctx, "dana smith", "smith", "BRQ001")
	if err != nil {
		t.Fatalf("FindActiveSiblings() error = %v", err)
	}
	if len(got) != 1 || got[0].BillingRequestID != "BRQ002" {
		t.Fatalf("FindActiveSiblings() = %+v, want only BRQ002", got)
	}
}

func TestTeamTableLookups(t *testing.T) {
	store := NewMemoryStore(testTeams)
	ctx := context.Background()

	ok, err := store.TeamExists(ctx, "tigers", "u10")
	if err != nil || !ok {
		t.Fatalf("TeamExists(tigers, u10) = %v, %v, want true", ok, err)
	}
	ok, err = store.TeamExists(ctx, "Tigers", "U12")
	if err != nil || ok {
		t.Fatalf("TeamExists(Tigers, U12) = %v, %v, want false", ok, err)
	}

	kit, err := store.KitNeeded(ctx, "Tigers", "U10")
	if err != nil || !kit {
		t.Fatalf("KitNeeded(Tigers, U10) = %v, %v, want true", kit, err)
	}
	kit, err = store.KitNeeded(ctx, "Panthers", "U12")
	if err != nil || kit {
		t.Fatalf("KitNeeded(Panthers, U12) = %v, %v, want false", kit, err)
	}
	if _, err := store.KitNeeded(ctx, "Lions", "U8"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("KitNeeded(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestShirtNumberConflicts(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	seed := []*models.RegistrationRecord{
		{BillingRequestID: "BRQ001", Team: "Tigers", AgeGroup: "U10", ShirtNumber: 7},
		{BillingRequestID: "BRQ002", Team: "Tigers", AgeGroup: "U10", ShirtNumber: 9},
		{BillingRequestID: "BRQ003", Team: "Tigers", AgeGroup: "U12", ShirtNumber: 7},
	}
	for _, r := range seed {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.BillingRequestID, err)
		}
	}

	n, err := store.ShirtNumberConflicts(ctx, "tigers", "u10", 7)
	if err != nil {
		t.Fatalf("ShirtNumberConflicts() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ShirtNumberConflicts(7) = %d, want 1", n)
	}
	n, _ = store.ShirtNumberConflicts(ctx, "Tigers", "U10", 11)
	if n != 0 {
		t.Fatalf("ShirtNumberConflicts(11) = %d, want 0", n)
	}
}
