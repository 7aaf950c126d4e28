package comps

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const collectionName = "sold_items"

// SoldComp is one comparable sold item in the vector index.
type SoldComp struct {
	ID         string
	Name       string
	Category   string
	PriceCents int64
	Score      float32
}

type Store struct {
	qdrant    *qdrant.Client
	vectorDim uint64
}

func NewStore(client *qdrant.Client, vectorDim uint64) *Store {
	return &Store{
		qdrant:    client,
		vectorDim: vectorDim,
	}
}

func (s *Store) EnsureCollection(ctx context.Context) error {
	if s.qdrant == nil {
		return errors.New("qdrant client not configured")
	}

	exists, err := s.qdrant.CollectionExists(ctx, collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return s.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorDim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) Upsert(ctx context.Context, comp SoldComp, embedding []float32) error {
	if s.qdrant == nil {
		return errors.New("qdrant client not configured")
	}
	if comp.ID == "" {
		comp.ID = uuid.NewString()
	}

	_, err := s.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(comp.ID),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"name":        comp.Name,
					"category":    comp.Category,
					"price_cents": comp.PriceCents,
				}),
			},
		},
	})
	return err
}

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]SoldComp, error) {
	if s.qdrant == nil {
		return nil, errors.New("qdrant client not configured")
	}
	if limit <= 0 {
		limit = 5
	}

	results, err := s.qdrant.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	comps := make([]SoldComp, 0, len(results))
	for _, r := range results {
		comp := SoldComp{Score: r.Score}
		if r.Id != nil {
			comp.ID = r.Id.GetUuid()
		}
		if v, ok := r.Payload["name"]; ok {
			comp.Name = v.GetStringValue()
		}
		if v, ok := r.Payload["category"]; ok {
			comp.Category = v.GetStringValue()
		}
		if v, ok := r.Payload["price_cents"]; ok {
			comp.PriceCents = v.GetIntegerValue()
		}
		comps = append(comps, comp)
	}
	return comps, nil
}
