package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// stubQueue records inputs and returns canned results.
type stubQueue struct {
	lastAdd      ports.AddTaskInput
	lastBatchAdd ports.BatchAddInput
}

func (q *stubQueue) Add(input ports.AddTaskInput) (*domain.Task, error) {
	q.lastAdd = input
	return &domain.Task{ID: "t1", Status: domain.TaskStatusPending}, nil
}

func (q *stubQueue) BatchAdd(input ports.BatchAddInput) (int, error) {
	q.lastBatchAdd = input
	return input.EndEpisode - input.StartEpisode + 1, nil
}

func (q *stubQueue) Cancel(_ string) bool         { return false }
func (q *stubQueue) RetryFailed() int             { return 0 }
func (q *stubQueue) ClearCompleted() int          { return 0 }
func (q *stubQueue) Status() domain.QueueSnapshot { return domain.QueueSnapshot{} }

type stubSettings struct {
	settings domain.QueueSettings
}

func (s *stubSettings) Current() domain.QueueSettings { return s.settings }

func (s *stubSettings) Update(_ context.Context, _ ports.UpdateSettingsInput) (domain.QueueSettings, error) {
	return s.settings, nil
}

func newQueueTestApp(queue *stubQueue) *fiber.App {
	settings := &stubSettings{settings: domain.QueueSettings{DefaultResolution: 720}}
	handler := NewQueueHandler(queue, settings, testLogger())
	app := fiber.New()
	app.Post("/download", handler.Download)
	app.Post("/download/batch", handler.BatchDownload)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestQueueHandler_DownloadResolution(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"omitted falls back to default", `{"anime_title":"Test Anime","episode":1}`, 720},
		{"explicit zero means highest", `{"anime_title":"Test Anime","episode":1,"resolution":0}`, 0},
		{"explicit height wins", `{"anime_title":"Test Anime","episode":1,"resolution":1080}`, 1080},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			queue := &stubQueue{}
			app := newQueueTestApp(queue)

			if code := postJSON(t, app, "/download", test.body); code != fiber.StatusAccepted {
				t.Fatalf("status = %d, expected %d", code, fiber.StatusAccepted)
			}
			if queue.lastAdd.Resolution != test.expected {
				t.Errorf("resolution = %d, expected %d", queue.lastAdd.Resolution, test.expected)
			}
		})
	}
}

func TestQueueHandler_BatchDownloadResolutionDefault(t *testing.T) {
	queue := &stubQueue{}
	app := newQueueTestApp(queue)

	body := `{"anime_title":"Test Anime","start_episode":1,"end_episode":3}`
	if code := postJSON(t, app, "/download/batch", body); code != fiber.StatusAccepted {
		t.Fatalf("status = %d, expected %d", code, fiber.StatusAccepted)
	}
	if queue.lastBatchAdd.Resolution != 720 {
		t.Errorf("resolution = %d, expected the default 720", queue.lastBatchAdd.Resolution)
	}
}

func TestQueueHandler_DownloadValidation(t *testing.T) {
	queue := &stubQueue{}
	app := newQueueTestApp(queue)

	body := `{"episode":1,"resolution":-2}`
	if code := postJSON(t, app, "/download", body); code != fiber.StatusBadRequest {
		t.Fatalf("status = %d, expected %d", code, fiber.StatusBadRequest)
	}
}
