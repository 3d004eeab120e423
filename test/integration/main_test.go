package integration_test

import (
	"log"
	"os"
	"sync"
	"testing"

	"crm_backend/test/helpers"
)

var (
	globalTestServer *helpers.TestServer
	serverOnce       sync.Once
)

// GetTestServer возвращает общий тестовый сервер (создает при первом вызове)
func GetTestServer(t *testing.T) *helpers.TestServer {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping integration tests")
	}
	serverOnce.Do(func() {
		os.Setenv("SERVER_ENV", "test")
		os.Setenv("JWT_SECRET", "integration_secret_key_12345")

		log.Println("--- [GetTestServer] Initializing test server... ---")
		globalTestServer = helpers.NewTestServer(t)
	})
	if globalTestServer == nil {
		t.Fatal("test server failed to initialize")
	}
	return globalTestServer
}

func TestMain(m *testing.M) {
	code := m.Run()

	if globalTestServer != nil {
		log.Println("--- [TestMain] Cleaning up... ---")
		globalTestServer.Close()
	}

	os.Exit(code)
}
