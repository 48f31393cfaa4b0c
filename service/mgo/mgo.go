package mgo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mgoOnce sync.Once
	client  *mongo.Client
	db      *mongo.Database
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// InitMongo connects the shared client (singleton).
func InitMongo(c Config) error {
	var initErr error
	mgoOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		opts := options.Client().ApplyURI(c.URI)
		if c.MaxPoolSize > 0 {
			opts.SetMaxPoolSize(c.MaxPoolSize)
		}
		cli, err := mongo.Connect(ctx, opts)
		if err != nil {
			initErr = err
			return
		}
		if err := cli.Ping(ctx, readpref.Primary()); err != nil {
			initErr = err
			return
		}
		client = cli
		db = cli.Database(c.Database)
	})
	return initErr
}

// GetDB returns the shared database handle.
func GetDB() *mongo.Database {
	if db == nil {
		panic("Mongo not initialized, call InitMongo first")
	}
	return db
}

func CloseMongo(ctx context.Context) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}
