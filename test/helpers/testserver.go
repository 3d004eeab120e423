package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"gorm.io/gorm"

	"crm_backend/database"
	"crm_backend/internal/app"
	"crm_backend/internal/config"
)

type TestServer struct {
	Server *httptest.Server
	DB     *gorm.DB
	App    *app.Application

	cancel     context.CancelFunc
	exportsDir string
}

// NewTestServer поднимает приложение поверх TEST_DATABASE_URL.
// Без переменной тесты пропускаются.
func NewTestServer(t *testing.T) *TestServer {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping integration tests")
	}

	cfg := config.FromEnv(dsn)
	// провайдеры выключены: SMS, email, Stripe и OpenAI идут по деградированному пути
	cfg.Redis.Addr = ""
	// сервер общий для всех тестов, t.TempDir() удалился бы после первого
	exportsDir, err := os.MkdirTemp("", "crm-exports-")
	if err != nil {
		t.Fatalf("Не удалось создать каталог для выгрузок: %v", err)
	}
	cfg.Storage.BasePath = exportsDir
	config.AppConfig = cfg

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("Не удалось подключиться к тестовой БД: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Не удалось выполнить AutoMigrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	application, err := app.New(ctx, cfg, db)
	if err != nil {
		cancel()
		t.Fatalf("Не удалось собрать приложение: %v", err)
	}

	return &TestServer{
		Server:     httptest.NewServer(application.Router),
		DB:         db,
		App:        application,
		cancel:     cancel,
		exportsDir: exportsDir,
	}
}

func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.cancel()
	ts.App.Close()
	os.RemoveAll(ts.exportsDir)
	if sqlDB, err := ts.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// SendRequest отправляет JSON-запрос и возвращает ответ с прочитанным телом
func (ts *TestServer) SendRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, string) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Ошибка кодирования JSON для запроса: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}
	return ts.SendRaw(t, method, path, token, reqBody, nil)
}

// SendRaw - для вебхуков и скачивания файлов, где тело не JSON
func (ts *TestServer) SendRaw(t *testing.T, method, path, token string, body io.Reader, headers map[string]string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, ts.Server.URL+path, body)
	if err != nil {
		t.Fatalf("Ошибка создания HTTP-запроса: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := ts.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("Ошибка отправки HTTP-запроса: %v", err)
	}
	defer res.Body.Close()

	resBodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Ошибка чтения тела ответа: %v", err)
	}
	return res, string(resBodyBytes)
}

// DecodeJSON разбирает тело ответа в out
func DecodeJSON(t *testing.T, body string, out interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("Не удалось распарсить JSON: %v. Тело: %s", err, body)
	}
}
