package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// TypeRegistry fronts the mirrored type descriptors. Descriptors are an
// enrichment: when one is present and fresh its required attributes are
// enforced, and when it is missing or expired the data document is accepted
// as-is. The store never refuses a write because the mirror is cold.
type TypeRegistry struct {
	store *store.Store
}

// NewTypeRegistry wires a TypeRegistry.
func NewTypeRegistry(st *store.Store) *TypeRegistry {
	return &TypeRegistry{store: st}
}

// Validate checks data against the type's descriptor if a usable one is
// mirrored locally.
func (r *TypeRegistry) Validate(ctx context.Context, typeCode string, data map[string]any) error {
	m, err := r.store.GetMetadata(ctx, typeCode)
	if err != nil {
		if model.IsNotFound(err) {
			return nil
		}
		// Validation enrichment must not take writes down with it.
		log.Ctx(ctx).Warn().Err(err).Str("type", typeCode).Msg("type descriptor unavailable, skipping validation")
		return nil
	}
	if !m.ValidForUse(time.Now().UTC()) {
		return nil
	}
	for name, def := range m.AttributeDefs {
		dm, ok := def.(map[string]any)
		if !ok {
			continue
		}
		if required, _ := dm["required"].(bool); !required {
			continue
		}
		if _, present := data[name]; !present {
			return model.ErrInvalidArgument(fmt.Sprintf("required attribute %q is missing", name))
		}
	}
	return nil
}

// Describe returns the mirrored descriptor for a type.
func (r *TypeRegistry) Describe(ctx context.Context, typeCode string) (*model.MetadataCache, error) {
	return r.store.GetMetadata(ctx, typeCode)
}

// Sync installs or refreshes a descriptor pushed by the metadata authority.
func (r *TypeRegistry) Sync(ctx context.Context, m *model.MetadataCache) error {
	if m.TypeCode == "" {
		return model.ErrInvalidArgument("objectTypeCode is required")
	}
	if err := r.store.UpsertMetadata(ctx, m); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("type", m.TypeCode).Msg("type descriptor synced")
	return nil
}

// RefreshNeeded lists descriptors that are flagged stale or past their TTL,
// so the metadata authority knows which types to push again.
func (r *TypeRegistry) RefreshNeeded(ctx context.Context) ([]*model.MetadataCache, error) {
	return r.store.StaleMetadata(ctx, time.Now().UTC())
}

// MarkStale flags a descriptor so validation stops trusting it.
func (r *TypeRegistry) MarkStale(ctx context.Context, typeCode string) error {
	return r.store.MarkMetadataStale(ctx, typeCode)
}
