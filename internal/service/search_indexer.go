package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	wmodels "github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
)

// SearchIndexer propagates references to a secondary read store.
type SearchIndexer interface {
	IndexReference(ctx context.Context, ref models.Reference) error
}

// NoopIndexer is used when the relational store serves every read.
type NoopIndexer struct{}

// IndexReference implements SearchIndexer.
func (NoopIndexer) IndexReference(context.Context, models.Reference) error { return nil }

// NewSearchIndexer picks the backend named by cfg.
func NewSearchIndexer(ctx context.Context, cfg config.SearchConfig, logger *zap.Logger) (SearchIndexer, error) {
	switch cfg.Backend {
	case "", config.SearchBackendNone:
		return NoopIndexer{}, nil
	case config.SearchBackendWeaviate:
		indexer, err := NewWeaviateIndexer(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := indexer.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return indexer, nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
}

type weaviateSchema interface {
	classExists(ctx context.Context, class string) (bool, error)
	createClass(ctx context.Context, class *wmodels.Class) error
}

type weaviateBatcher interface {
	upsert(ctx context.Context, objects ...*wmodels.Object) ([]wmodels.ObjectsGetResponse, error)
}

type weaviateClient struct {
	client *weaviate.Client
}

func (c weaviateClient) classExists(ctx context.Context, class string) (bool, error) {
	_, err := c.client.Schema().ClassGetter().WithClassName(class).Do(ctx)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}
	return false, err
}

func (c weaviateClient) createClass(ctx context.Context, class *wmodels.Class) error {
	return c.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (c weaviateClient) upsert(ctx context.Context, objects ...*wmodels.Object) ([]wmodels.ObjectsGetResponse, error) {
	return c.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
}

// WeaviateIndexer upserts references into a Weaviate class keyed by reference id.
// Contacts are stored masked.
type WeaviateIndexer struct {
	schema    weaviateSchema
	batch     weaviateBatcher
	className string
	logger    *zap.Logger
}

// NewWeaviateIndexer connects to the Weaviate instance at cfg.URL.
func NewWeaviateIndexer(cfg config.SearchConfig, logger *zap.Logger) (*WeaviateIndexer, error) {
	wcfg := weaviate.Config{Host: cfg.URL, Scheme: "http"}
	if strings.HasPrefix(cfg.URL, "https://") {
		wcfg.Scheme = "https"
		wcfg.Host = strings.TrimPrefix(cfg.URL, "https://")
	} else if strings.HasPrefix(cfg.URL, "http://") {
		wcfg.Host = strings.TrimPrefix(cfg.URL, "http://")
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	wc := weaviateClient{client: client}
	return newWeaviateIndexer(wc, wc, cfg.ClassName, logger), nil
}

func newWeaviateIndexer(schema weaviateSchema, batch weaviateBatcher, className string, logger *zap.Logger) *WeaviateIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if className == "" {
		className = "VoterReference"
	}
	return &WeaviateIndexer{schema: schema, batch: batch, className: className, logger: logger}
}

// ReferenceClass describes the Weaviate class holding indexed references.
func ReferenceClass(name string) *wmodels.Class {
	return &wmodels.Class{
		Class:       name,
		Description: "Voter-nominated references for outreach search",
		Vectorizer:  "none",
		Properties: []*wmodels.Property{
			{Name: "userId", DataType: []string{"text"}},
			{Name: "referenceName", DataType: []string{"text"}},
			{Name: "maskedContact", DataType: []string{"text"}},
			{Name: "status", DataType: []string{"text"}},
			{Name: "whatsappSent", DataType: []string{"boolean"}},
			{Name: "createdAt", DataType: []string{"date"}},
			{Name: "statusUpdatedAt", DataType: []string{"date"}},
		},
	}
}

// EnsureSchema creates the class when missing. Safe to call repeatedly.
func (w *WeaviateIndexer) EnsureSchema(ctx context.Context) error {
	exists, err := w.schema.classExists(ctx, w.className)
	if err != nil {
		return fmt.Errorf("check weaviate class %s: %w", w.className, err)
	}
	if exists {
		return nil
	}
	if err := w.schema.createClass(ctx, ReferenceClass(w.className)); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", w.className, err)
	}
	w.logger.Info("weaviate class created", zap.String("class", w.className))
	return nil
}

// IndexReference implements SearchIndexer. Batch import replaces an existing
// object with the same id.
func (w *WeaviateIndexer) IndexReference(ctx context.Context, ref models.Reference) error {
	props := map[string]interface{}{
		"userId":        ref.UserID,
		"referenceName": ref.ReferenceName,
		"maskedContact": phone.Mask(ref.ReferenceContact),
		"status":        string(ref.Status),
		"whatsappSent":  ref.WhatsappSent,
		"createdAt":     ref.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ref.StatusUpdatedAt != nil {
		props["statusUpdatedAt"] = ref.StatusUpdatedAt.UTC().Format(time.RFC3339)
	}

	result, err := w.batch.upsert(ctx, &wmodels.Object{
		Class:      w.className,
		ID:         strfmt.UUID(ref.ID),
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("index reference %s: %w", ref.ID, err)
	}
	for _, item := range result {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		msgs := make([]string, 0, len(item.Result.Errors.Error))
		for _, e := range item.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return fmt.Errorf("index reference %s: %w", ref.ID, errors.New(strings.Join(msgs, "; ")))
	}
	return nil
}
