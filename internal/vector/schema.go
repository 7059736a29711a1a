package vector

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName holds one object per indexed statement page.
const ClassName = "StatementPage"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	DeleteClass(ctx context.Context, className string) error
}

func properties() []*models.Property {
	return []*models.Property{
		{
			Name:     "text",
			DataType: []string{"text"},
		},
		{
			Name:     "pageNumber",
			DataType: []string{"int"},
		},
		{
			Name:     "sourcePath",
			DataType: []string{"string"},
		},
		{
			Name:     "buildId",
			DataType: []string{"string"}, // UUID as string (exact match)
		},
		{
			Name:     "position",
			DataType: []string{"int"},
		},
	}
}

// EnsureSchema checks if the page class exists and creates it if not.
// Vectors are always supplied by the client, so the vectorizer is "none".
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	props := properties()
	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A page of a financial statement",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: props,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range props {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}

// ResetSchema drops every stored page and recreates an empty class.
// Indexes never outlive the process that built them.
func ResetSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}
	if exists {
		slog.InfoContext(ctx, "purging stale statement pages", "class", ClassName)
		if err := client.DeleteClass(ctx, ClassName); err != nil {
			return err
		}
	}
	return EnsureSchema(ctx, client)
}
