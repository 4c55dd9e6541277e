package colors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
)

// Request names the breed to look up.
type Request struct {
	BreedName  string
	AnimalType string
	APIKey     string
	Template   string
}

// Resolver renders the colors prompt, asks the completer and parses the
// comma-separated answer. Successful lookups are cached; failures are not.
type Resolver struct {
	completer  Completer
	defaultKey func() string
	cache      *cache.Cache
	group      singleflight.Group
}

type ResolverOptions struct {
	// DefaultKey supplies the credential used when a request carries none.
	DefaultKey func() string
	// CacheTTL of zero disables caching.
	CacheTTL time.Duration
}

func NewResolver(completer Completer, opts ResolverOptions) *Resolver {
	r := &Resolver{completer: completer, defaultKey: opts.DefaultKey}
	if opts.CacheTTL > 0 {
		r.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return r
}

// Resolve returns the ordered list of colors for the breed.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]string, error) {
	breed := strings.TrimSpace(req.BreedName)
	animal := strings.TrimSpace(req.AnimalType)
	if breed == "" || animal == "" {
		return nil, fmt.Errorf("colors: breed name and animal type are required: %w", domain.ErrInvalidInput)
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" && r.defaultKey != nil {
		apiKey = strings.TrimSpace(r.defaultKey())
	}
	if apiKey == "" {
		return nil, fmt.Errorf("colors: api key is required: %w", domain.ErrInvalidInput)
	}

	template := req.Template
	if strings.TrimSpace(template) == "" {
		template = imagegen.DefaultColorsPrompt
	}
	prompt := imagegen.Render(template, imagegen.Vars{AnimalType: animal, BreedName: breed})
	key := strings.ToLower(animal) + "|" + strings.ToLower(breed) + "|" + prompt

	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return append([]string(nil), v.([]string)...), nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		text, err := r.completer.Complete(ctx, apiKey, prompt)
		if err != nil {
			return nil, err
		}
		parsed := domain.SplitColors(text)
		if len(parsed) == 0 {
			return nil, fmt.Errorf("colors: empty answer for %s: %w", breed, domain.ErrProviderFailure)
		}
		if r.cache != nil {
			r.cache.Set(key, parsed, cache.DefaultExpiration)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}
