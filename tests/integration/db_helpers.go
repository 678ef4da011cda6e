package integration

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/db"
	"github.com/arwahdevops/mongosync/internal/schema"
)

const mongoImage = "mongo:7"

// TestMongoInstance holds the details of a MongoDB container used by a test.
type TestMongoInstance struct {
	Container testcontainers.Container
	URI       string
	Host      string
	Port      nat.Port
	DBName    string
	Conn      *db.Connector
}

// mustPortInt converts a nat.Port to int.
func mustPortInt(t *testing.T, port nat.Port) int {
	t.Helper()
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("Failed to convert port %s to int: %v", port.Port(), err)
	}
	return p
}

// startMongoContainer starts a single-node MongoDB without authentication.
func startMongoContainer(ctx context.Context, t *testing.T, dbName string) *TestMongoInstance {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start mongo container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mongo container host: %s", err)
	}
	mappedPort, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port for mongo: %s", err)
	}

	uri, err := db.BuildURI(config.MongoConfig{Host: host, Port: mustPortInt(t, mappedPort)}, "", "")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to build mongo uri: %s", err)
	}
	conn, err := db.New(ctx, uri, dbName, "mongosync-integration", 20*time.Second, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect to test mongo instance: %s", err)
	}

	t.Logf("MongoDB container started. Host: %s, Port: %s", host, mappedPort.Port())

	return &TestMongoInstance{
		Container: container,
		URI:       uri,
		Host:      host,
		Port:      mappedPort,
		DBName:    dbName,
		Conn:      conn,
	}
}

// stopContainer closes the client and terminates the container.
func stopContainer(ctx context.Context, t *testing.T, instance *TestMongoInstance) {
	t.Helper()
	if instance == nil {
		return
	}
	if instance.Conn != nil {
		if err := instance.Conn.Client.Disconnect(ctx); err != nil {
			t.Logf("Warning: error disconnecting mongo client: %v", err)
		}
	}
	if instance.Container != nil {
		if err := instance.Container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate mongo container: %s", err)
		} else {
			t.Logf("mongo container terminated successfully.")
		}
	}
}

// seedCollection creates name with the given single-field indexes, named after the field.
func seedCollection(ctx context.Context, t *testing.T, instance *TestMongoInstance, name string, indexFields ...string) {
	t.Helper()
	handle := db.NewMongoHandle(instance.Conn)
	if err := handle.CreateCollection(ctx, name); err != nil {
		t.Fatalf("Failed to seed collection %s: %v", name, err)
	}
	for _, f := range indexFields {
		err := handle.CreateIndex(ctx, name, bson.D{{Key: f, Value: int32(1)}}, schema.IndexOptions{Name: f})
		if err != nil {
			t.Fatalf("Failed to seed index %s.%s: %v", name, f, err)
		}
	}
}

// liveState returns collection -> sorted index names.
func liveState(ctx context.Context, t *testing.T, instance *TestMongoInstance) map[string][]string {
	t.Helper()
	handle := db.NewMongoHandle(instance.Conn)
	names, err := handle.ListCollectionNames(ctx)
	if err != nil {
		t.Fatalf("Failed to list collections: %v", err)
	}
	state := make(map[string][]string, len(names))
	for _, n := range names {
		indexes, err := handle.ListIndexes(ctx, n)
		if err != nil {
			t.Fatalf("Failed to list indexes of %s: %v", n, err)
		}
		idxNames := make([]string, 0, len(indexes))
		for _, idx := range indexes {
			idxNames = append(idxNames, idx.Name)
		}
		sort.Strings(idxNames)
		state[n] = idxNames
	}
	return state
}

func describeState(state map[string][]string) string {
	names := make([]string, 0, len(state))
	for n := range state {
		names = append(names, n)
	}
	sort.Strings(names)
	out := ""
	for _, n := range names {
		out += fmt.Sprintf("%s=%v ", n, state[n])
	}
	return out
}
