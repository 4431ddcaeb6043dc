package services

import (
	"fmt"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// KeywordService handles admin CRUD for autopilot keyword rules. The rules
// themselves are consulted read-only by the autopilot engine.
type KeywordService struct {
	store storage.Store
}

// NewKeywordService creates the keyword admin service
func NewKeywordService(store storage.Store) *KeywordService {
	return &KeywordService{store: store}
}

// SetKeyword creates a rule; duplicate keywords are a conflict.
func (k *KeywordService) SetKeyword(payload *models.SetKeyword) (*models.Keyword, error) {
	kw := &models.Keyword{
		Keyword:    payload.Keyword,
		Reply:      payload.Reply,
		ReplyAfter: payload.ReplyAfter,
	}
	return k.store.CreateKeyword(kw)
}

// UpdateKeyword patches a rule. Renaming onto an existing keyword is a
// conflict.
func (k *KeywordService) UpdateKeyword(keywordID string, patch *models.UpdateKeyword) (*models.Keyword, error) {
	kw, err := k.store.GetKeyword(keywordID)
	if err != nil {
		return nil, err
	}

	if patch.Keyword != nil && *patch.Keyword != kw.Keyword {
		existing, err := k.findByKeyword(*patch.Keyword)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("keyword %q already exists: %w", *patch.Keyword, apperrors.ErrConflict)
		}
		kw.Keyword = *patch.Keyword
	}
	if patch.Reply != nil {
		kw.Reply = *patch.Reply
	}
	if patch.ReplyAfter != nil {
		kw.ReplyAfter = *patch.ReplyAfter
	}

	if err := k.store.UpdateKeyword(kw); err != nil {
		return nil, err
	}
	return kw, nil
}

// FindAll returns every rule in stored order
func (k *KeywordService) FindAll() ([]*models.Keyword, error) {
	return k.store.GetAllKeywords()
}

// Delete removes a rule; unknown id is NotFound.
func (k *KeywordService) Delete(keywordID string) error {
	return k.store.DeleteKeyword(keywordID)
}

func (k *KeywordService) findByKeyword(keyword string) (*models.Keyword, error) {
	rules, err := k.store.GetAllKeywords()
	if err != nil {
		return nil, err
	}
	for _, kr := range rules {
		if kr.Keyword == keyword {
			return kr, nil
		}
	}
	return nil, nil
}
