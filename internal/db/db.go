package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/logger"
)

type Connector struct {
	Client *mongo.Client
	DB     *mongo.Database
	Name   string
}

// New creates a client for uri and verifies it with a ping bounded by connectTimeout.
// loggerOpts may be nil.
func New(ctx context.Context, uri, dbName, appName string, connectTimeout time.Duration, loggerOpts *options.LoggerOptions) (*Connector, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)
	if appName != "" {
		clientOpts.SetAppName(appName)
	}
	if loggerOpts != nil {
		clientOpts.SetLoggerOptions(loggerOpts)
	}

	// In v2, Connect does not take a context and does no I/O.
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	c := &Connector{
		Client: client,
		DB:     client.Database(dbName),
		Name:   dbName,
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo (%s): %w", RedactURI(uri), err)
	}
	return c, nil
}

func (c *Connector) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Client.Ping(pingCtx, readpref.Primary())
}

func (c *Connector) Close(ctx context.Context) error {
	logger.Get().Info("Closing mongo client", zap.String("database", c.Name))
	return c.Client.Disconnect(ctx)
}

// BuildURI returns the connection string for cfg. An explicit MONGO_URI wins;
// user and password are injected into it only when it carries no userinfo.
func BuildURI(cfg config.MongoConfig, user, password string) (string, error) {
	if cfg.URI != "" {
		u, err := url.Parse(cfg.URI)
		if err != nil {
			return "", fmt.Errorf("invalid MONGO_URI: %w", err)
		}
		if u.User == nil && user != "" {
			u.User = url.UserPassword(user, password)
			q := u.Query()
			if q.Get("authSource") == "" && cfg.AuthSource != "" {
				q.Set("authSource", cfg.AuthSource)
				u.RawQuery = q.Encode()
			}
		}
		return u.String(), nil
	}

	u := &url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/",
	}
	q := url.Values{}
	if user != "" {
		u.User = url.UserPassword(user, password)
		if cfg.AuthSource != "" {
			q.Set("authSource", cfg.AuthSource)
		}
	}
	if cfg.TLS {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactURI hides the password of a connection string for logging.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}
