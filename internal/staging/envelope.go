package staging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/pkg/enums"
)

// MetadataVersion is the current envelope schema version. Readers reject
// versions they do not recognize instead of guessing at fields.
const MetadataVersion = 1

// ItemContext preserves one payment item exactly as it was staged.
type ItemContext struct {
	ItemType    enums.LineItemType `json:"itemType"`
	ItemID      *uuid.UUID         `json:"itemId,omitempty"`
	Description string             `json:"description,omitempty"`
	AccountCode string             `json:"accountCode,omitempty"`
	AmountCents int                `json:"amountCents"`
}

// MetadataEnvelope is the versioned purchase context stored on each staging
// invoice. It is the durable source of truth when the structured columns are
// insufficient to reconstruct the purchase.
type MetadataEnvelope struct {
	Version       int           `json:"version"`
	StagedAt      time.Time     `json:"stagedAt"`
	UserID        uuid.UUID     `json:"userId"`
	PaymentID     *uuid.UUID    `json:"paymentId,omitempty"`
	DiscountCodes []uuid.UUID   `json:"discountCodes,omitempty"`
	Items         []ItemContext `json:"items"`
}

// EncodeMetadata serializes the envelope for storage.
func EncodeMetadata(envelope MetadataEnvelope) (json.RawMessage, error) {
	if envelope.Version == 0 {
		envelope.Version = MetadataVersion
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal staging metadata: %w", err)
	}
	return raw, nil
}

// ParseMetadata decodes a stored envelope, failing loudly on unknown versions.
func ParseMetadata(raw json.RawMessage) (*MetadataEnvelope, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("staging metadata is empty")
	}
	var envelope MetadataEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal staging metadata: %w", err)
	}
	if envelope.Version != MetadataVersion {
		return nil, fmt.Errorf("unsupported staging metadata version %d", envelope.Version)
	}
	return &envelope, nil
}
