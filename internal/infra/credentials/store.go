package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

const EnvOpenAIAPIKey = "OPENAI_API_KEY"

// Store keeps the default OpenAI credential in the process environment and
// persists it to a dotenv file so the next start picks it up.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

// Path returns the dotenv file the store writes to.
func (s *Store) Path() string { return s.path }

// OpenAIAPIKey returns the key from the environment, falling back to the
// dotenv file. An unset key yields an empty string.
func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); key != "" {
		return key, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(values[EnvOpenAIAPIKey]), nil
}

// HasOpenAIAPIKey reports whether a default key is configured.
func (s *Store) HasOpenAIAPIKey(ctx context.Context) bool {
	key, err := s.OpenAIAPIKey(ctx)
	return err == nil && key != ""
}

// SetOpenAIAPIKey writes the key to the dotenv file, keeping other entries,
// and exports it to the running process.
func (s *Store) SetOpenAIAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("openai api key is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		values, err := s.read()
		if err != nil {
			return err
		}
		values[EnvOpenAIAPIKey] = key
		if err := godotenv.Write(values, s.path); err != nil {
			return fmt.Errorf("credentials: write %s: %w", s.path, err)
		}
	}
	if err := os.Setenv(EnvOpenAIAPIKey, key); err != nil {
		return fmt.Errorf("credentials: set env: %w", err)
	}
	return nil
}

func (s *Store) read() (map[string]string, error) {
	if s.path == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}
	return values, nil
}
