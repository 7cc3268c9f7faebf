package database

import (
	"context"
	"fmt"

	"github.com/velora-labs/conversa/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoClient crea una nueva conexión a MongoDB. La URI es opcional: los
// nodos de base de datos documental abren su propia conexión cuando el flujo
// define credenciales propias.
func NewMongoClient(cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, nil
}

// CloseMongo cierra la conexión a MongoDB
func CloseMongo(ctx context.Context, client *mongo.Client) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}
