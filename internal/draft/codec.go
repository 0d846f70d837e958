package draft

import (
	"bytes"
	"encoding/json"
	"fmt"

	"invoicedesk/backend/internal/domain"
)

// Envelope is the JSON form of an action, e.g.
//
//	{"type":"UPDATE_LINE_ITEM","id":"l1","changes":{"quantity":3}}
type Envelope struct {
	Type    Kind                `json:"type"`
	ID      string              `json:"id,omitempty"`
	Field   Field               `json:"field,omitempty"`
	Value   string              `json:"value,omitempty"`
	Changes *LineItemChanges    `json:"changes,omitempty"`
	Item    *domain.CatalogItem `json:"item,omitempty"`
	State   *domain.DraftState  `json:"state,omitempty"`
}

// Action converts the envelope into its typed action.
func (env Envelope) Action() (Action, error) {
	switch env.Type {
	case KindSetField:
		return SetField{Field: env.Field, Value: env.Value}, nil
	case KindAddLineItem:
		return AddLineItem{ID: env.ID}, nil
	case KindRemoveLineItem:
		return RemoveLineItem{ID: env.ID}, nil
	case KindUpdateLineItem:
		var changes LineItemChanges
		if env.Changes != nil {
			changes = *env.Changes
		}
		return UpdateLineItem{ID: env.ID, Changes: changes}, nil
	case KindSetItemSelection:
		return SetItemSelection{ID: env.ID, Item: env.Item}, nil
	case KindSetAll:
		if env.State == nil {
			return nil, fmt.Errorf("%w: SET_ALL requires state", ErrUnknownAction)
		}
		return SetAll{State: *env.State}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
}

// DecodeAction parses one JSON action envelope.
func DecodeAction(raw []byte) (Action, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	var env Envelope
	if err := decoder.Decode(&env); err != nil {
		return nil, err
	}
	return env.Action()
}
