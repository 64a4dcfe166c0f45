package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/local/pdftutor/api/db"
	"gorm.io/gorm"
)

// fakeProvider returns canned model output and records what it was asked
type fakeProvider struct {
	mu       sync.Mutex
	text     string
	json     string
	err      error
	prompts  []string
	systems  []string
	jsonCall int
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, systemPrompt)
	return f.text, f.err
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, systemPrompt)
	f.jsonCall++
	return f.json, f.err
}

func (f *fakeProvider) GetProviderName() string {
	return "fake"
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return database
}
