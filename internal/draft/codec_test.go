package draft

import (
	"errors"
	"testing"
)

func TestDecodeActionUpdateLineItem(t *testing.T) {
	action, err := DecodeAction([]byte(`{"type":"UPDATE_LINE_ITEM","id":"l1","changes":{"quantity":3,"name":"Audit"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	update, ok := action.(UpdateLineItem)
	if !ok {
		t.Fatalf("expected UpdateLineItem, got %T", action)
	}
	if update.ID != "l1" || update.Changes.Quantity == nil || *update.Changes.Quantity != 3 || *update.Changes.Name != "Audit" {
		t.Fatalf("unexpected action %+v", update)
	}
	if update.Changes.UnitPrice != nil {
		t.Fatalf("absent fields must stay nil")
	}
}

func TestDecodeActionSetItemSelection(t *testing.T) {
	action, err := DecodeAction([]byte(`{"type":"SET_ITEM_SELECTION","id":"l1","item":{"id":"cat_1","name":"Hosting","unitPrice":12}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sel := action.(SetItemSelection)
	if sel.Item == nil || sel.Item.UnitPrice != 12 {
		t.Fatalf("unexpected selection %+v", sel)
	}

	action, err = DecodeAction([]byte(`{"type":"SET_ITEM_SELECTION","id":"l1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if action.(SetItemSelection).Item != nil {
		t.Fatalf("expected nil item")
	}
}

func TestDecodeActionRejectsUnknownType(t *testing.T) {
	if _, err := DecodeAction([]byte(`{"type":"DELETE_EVERYTHING"}`)); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := DecodeAction([]byte(`{"type":"SET_ALL"}`)); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction for SET_ALL without state, got %v", err)
	}
	if _, err := DecodeAction([]byte(`{"type":"SET_FIELD","extra":1}`)); err == nil {
		t.Fatalf("expected unknown JSON fields to be rejected")
	}
}
