package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultDatabase       = "LightningDocs"
	DefaultCollection     = "Records"
	DefaultConnectTimeout = 10 * time.Second
)

var ErrMissingConnection = errors.New("mongo uri or user, password and cluster are required")

// Config describes how to reach the document store
type Config struct {
	URI            string
	User           string
	Password       string
	Cluster        string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// ConnectionURI returns URI when set, otherwise an Atlas SRV URI built from the credentials
func (c Config) ConnectionURI() (string, error) {
	if c.URI != "" {
		return c.URI, nil
	}
	if c.User == "" || c.Password == "" || c.Cluster == "" {
		return "", ErrMissingConnection
	}
	u := url.URL{
		Scheme:   "mongodb+srv",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Cluster,
		Path:     "/",
		RawQuery: "retryWrites=true&w=majority",
	}
	return u.String(), nil
}

// Instance holds a connected client and the database records live in
type Instance struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   ectologger.Logger
}

// Connect opens a client and pings the primary before returning it
func Connect(ctx context.Context, cfg Config, logger ectologger.Logger) (*Instance, error) {
	uri, err := cfg.ConnectionURI()
	if err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetAppName("monthly-double-checker")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.WithContext(ctx).WithField("database", cfg.Database).Info("Connected to mongo")

	return &Instance{
		Client:   client,
		Database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

// Ping checks the primary is reachable
func (i *Instance) Ping(ctx context.Context) error {
	return i.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (i *Instance) Close(ctx context.Context) error {
	if err := i.Client.Disconnect(ctx); err != nil {
		i.logger.WithContext(ctx).WithError(err).Warn("Failed to disconnect from mongo")
		return err
	}
	return nil
}
