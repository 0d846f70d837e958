package service

import (
	"context"
	"fmt"
	"time"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/store"
)

// Snapshot is the full current contents of one collection.
type Snapshot struct {
	Collection feed.Collection `json:"collection"`
	At         time.Time       `json:"at"`
	Data       any             `json:"data"`
}

// Watch emits a snapshot immediately and again after every change to the
// collection. Snapshots are re-read from the store, never patched. The channel
// closes when ctx is done.
func (s *Service) Watch(ctx context.Context, collection feed.Collection) (<-chan Snapshot, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", store.ErrInvalidInput, collection)
	}

	changes, err := s.changes.Subscribe(ctx, uid)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)

		emit := func() bool {
			snapshot, err := s.snapshot(ctx, uid, collection)
			if err != nil {
				s.log.Warn().Err(err).Str("collection", string(collection)).Msg("snapshot query failed")
				return ctx.Err() == nil
			}
			select {
			case out <- snapshot:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				if change.Collection != collection {
					continue
				}
				if !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Service) snapshot(ctx context.Context, uid string, collection feed.Collection) (Snapshot, error) {
	snapshot := Snapshot{Collection: collection, At: s.now()}
	var err error
	switch collection {
	case feed.CollectionDocuments:
		var docs []domain.Document
		docs, err = s.repo.ListDocuments(ctx, uid, domain.DocumentFilter{})
		snapshot.Data = docs
	case feed.CollectionCustomers:
		var customers []domain.Customer
		customers, err = s.repo.ListCustomers(ctx, uid)
		snapshot.Data = customers
	case feed.CollectionItems:
		var items []domain.CatalogItem
		items, err = s.repo.ListCatalogItems(ctx, uid)
		snapshot.Data = items
	}
	if err != nil {
		return Snapshot{}, wrapPersistence("snapshot", err)
	}
	return snapshot, nil
}
