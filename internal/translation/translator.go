// Package translation fans editable text out to an external machine
// translation service. Per-language failures are tolerated independently;
// missing languages fall back to the base language at display time.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lumasites/lumasites-backend/pkg/config"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

// Translator turns base-language text into one target language.
type Translator interface {
	Translate(ctx context.Context, title, body, targetLang string) (string, string, error)
}

// Text is a translated title/body pair.
type Text struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// HTTPTranslator calls the configured external endpoint.
type HTTPTranslator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPTranslator(cfg config.TranslationConfig) (*HTTPTranslator, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("translation endpoint is required")
	}
	return &HTTPTranslator{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (t *HTTPTranslator) Translate(ctx context.Context, title, body, targetLang string) (string, string, error) {
	payload, err := json.Marshal(map[string]string{
		"title":      title,
		"body":       body,
		"targetLang": targetLang,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling translation service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("translation service returned %s: %s", resp.Status, strings.TrimSpace(string(detail))))
	}

	var out Text
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding translation response")
	}
	return out.Title, out.Body, nil
}

// FanOut translates into every target language concurrently. Failures are
// collected per language, never returned: a language that fails is simply
// absent from the result and the base text serves in its place.
func FanOut(ctx context.Context, translator Translator, logg *logger.Logger, title, body string, targetLangs []string) map[string]Text {
	results := make(map[string]Text, len(targetLangs))
	if translator == nil || (title == "" && body == "") {
		return results
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for _, lang := range targetLangs {
		lang := strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		group.Go(func() error {
			translatedTitle, translatedBody, err := translator.Translate(groupCtx, title, body, lang)
			if err != nil {
				if logg != nil {
					logCtx := logg.WithField(groupCtx, "target_lang", lang)
					logg.Warn(logCtx, "translation failed, falling back to base language")
				}
				// Tolerated: the group never fails on one language.
				return nil
			}
			mu.Lock()
			results[lang] = Text{Title: translatedTitle, Body: translatedBody}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return results
}
