package services_test

import (
	"testing"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestUpdateKeywordUnknownID(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := services.NewKeywordService(store)

	_, err := svc.UpdateKeyword("missing", &models.UpdateKeyword{Reply: strPtr("new")})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateKeywordRenameConflict(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := services.NewKeywordService(store)

	price, err := svc.SetKeyword(&models.SetKeyword{Keyword: "price", Reply: "$10"})
	if err != nil {
		t.Fatalf("SetKeyword failed: %v", err)
	}
	if _, err := svc.SetKeyword(&models.SetKeyword{Keyword: "hours", Reply: "9-5"}); err != nil {
		t.Fatalf("SetKeyword failed: %v", err)
	}

	_, err = svc.UpdateKeyword(price.KeywordID, &models.UpdateKeyword{Keyword: strPtr("hours")})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict when renaming onto an existing keyword, got %v", err)
	}

	// The rule is untouched after the refused rename.
	kept, err := store.GetKeyword(price.KeywordID)
	if err != nil {
		t.Fatalf("GetKeyword failed: %v", err)
	}
	if kept.Keyword != "price" || kept.Reply != "$10" {
		t.Fatalf("refused rename modified the rule: %+v", kept)
	}

	// Renaming onto itself is a no-op, not a conflict.
	if _, err := svc.UpdateKeyword(price.KeywordID, &models.UpdateKeyword{Keyword: strPtr("price")}); err != nil {
		t.Fatalf("self-rename must succeed, got %v", err)
	}
}

func TestUpdateKeywordPatchesOnlyGivenFields(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := services.NewKeywordService(store)

	kw, err := svc.SetKeyword(&models.SetKeyword{Keyword: "price", Reply: "$10", ReplyAfter: 5})
	if err != nil {
		t.Fatalf("SetKeyword failed: %v", err)
	}

	updated, err := svc.UpdateKeyword(kw.KeywordID, &models.UpdateKeyword{Reply: strPtr("$12")})
	if err != nil {
		t.Fatalf("UpdateKeyword failed: %v", err)
	}
	if updated.Keyword != "price" || updated.Reply != "$12" || updated.ReplyAfter != 5 {
		t.Fatalf("nil fields must stay untouched, got %+v", updated)
	}

	updated, err = svc.UpdateKeyword(kw.KeywordID, &models.UpdateKeyword{
		Keyword:    strPtr("cost"),
		ReplyAfter: intPtr(0),
	})
	if err != nil {
		t.Fatalf("UpdateKeyword failed: %v", err)
	}
	if updated.Keyword != "cost" || updated.Reply != "$12" || updated.ReplyAfter != 0 {
		t.Fatalf("unexpected patched rule: %+v", updated)
	}

	stored, err := store.GetKeyword(kw.KeywordID)
	if err != nil {
		t.Fatalf("GetKeyword failed: %v", err)
	}
	if stored.Keyword != "cost" || stored.Reply != "$12" || stored.ReplyAfter != 0 {
		t.Fatalf("patch not persisted: %+v", stored)
	}
}
