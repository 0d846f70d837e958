package service

import (
	"context"
	"math"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/validation"
)

func (s *Service) ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListCatalogItems(ctx, uid)
	if err != nil {
		return nil, wrapPersistence("list_items", err)
	}
	return items, nil
}

func (s *Service) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetCatalogItem(ctx, uid, id)
	if err != nil {
		return nil, wrapPersistence("get_item", err)
	}
	return item, nil
}

func (s *Service) CreateCatalogItem(ctx context.Context, input domain.CatalogItemInput) (*domain.CatalogItem, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	item := applyCatalogInput(domain.CatalogItem{UserID: uid}, input)
	if err := validateCatalogItem(item); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateCatalogItem(ctx, item)
	if err != nil {
		return nil, wrapPersistence("create_item", err)
	}
	s.publish(ctx, uid, feed.CollectionItems, created.ID, feed.OpCreated)
	return created, nil
}

func (s *Service) UpdateCatalogItem(ctx context.Context, id string, input domain.CatalogItemInput) (*domain.CatalogItem, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCatalogItem(ctx, uid, id)
	if err != nil {
		return nil, wrapPersistence("get_item", err)
	}
	item := applyCatalogInput(*existing, input)
	if err := validateCatalogItem(item); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateCatalogItem(ctx, item)
	if err != nil {
		return nil, wrapPersistence("update_item", err)
	}
	s.publish(ctx, uid, feed.CollectionItems, updated.ID, feed.OpUpdated)
	return updated, nil
}

func (s *Service) DeleteCatalogItem(ctx context.Context, id string) error {
	uid, err := requireUID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCatalogItem(ctx, uid, id); err != nil {
		return wrapPersistence("delete_item", err)
	}
	s.publish(ctx, uid, feed.CollectionItems, id, feed.OpDeleted)
	return nil
}

func applyCatalogInput(item domain.CatalogItem, input domain.CatalogItemInput) domain.CatalogItem {
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	return item
}

func validateCatalogItem(item domain.CatalogItem) error {
	fields := validation.FieldErrors{}
	if item.Name == "" {
		fields[validation.FieldName] = "Name is required"
	}
	if math.IsNaN(item.UnitPrice) || math.IsInf(item.UnitPrice, 0) || item.UnitPrice < 0 {
		fields[validation.FieldUnitPrice] = "Unit price must be a number ≥ 0"
	}
	return validation.Result{Header: fields}.Err()
}
