package speech

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

//go:embed voices.yaml
var builtinVoices []byte

// Catalog lists the voices of the synthesis engine. It may be populated
// asynchronously; Voices returns an empty list until then.
type Catalog struct {
	mu     sync.RWMutex
	voices []speechmodel.Voice
	ready  chan struct{}
}

type catalogFile struct {
	Voices []speechmodel.Voice `yaml:"voices"`
}

// NewCatalog returns a populated catalog.
func NewCatalog(voices []speechmodel.Voice) *Catalog {
	c := &Catalog{ready: make(chan struct{})}
	c.set(voices)
	return c
}

// LoadCatalog starts reading the catalog at path in the background. An
// empty path loads the built-in voices.
func LoadCatalog(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{ready: make(chan struct{})}

	go func() {
		data := builtinVoices
		if path = strings.TrimSpace(path); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Error("read voice catalog, using built-in voices", zap.String("path", path), zap.Error(err))
			} else {
				data = raw
			}
		}

		voices, err := ParseCatalog(data)
		if err != nil {
			logger.Error("parse voice catalog", zap.Error(err))
			voices, _ = ParseCatalog(builtinVoices)
		}
		logger.Info("voice catalog loaded", zap.Int("voices", len(voices)))
		c.set(voices)
	}()

	return c
}

// ParseCatalog decodes a YAML voice list.
func ParseCatalog(data []byte) ([]speechmodel.Voice, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode voice catalog: %w", err)
	}

	voices := make([]speechmodel.Voice, 0, len(file.Voices))
	for _, v := range file.Voices {
		if strings.TrimSpace(v.ID) == "" {
			continue
		}
		if v.Name == "" {
			v.Name = v.ID
		}
		voices = append(voices, v)
	}
	return voices, nil
}

func (c *Catalog) set(voices []speechmodel.Voice) {
	c.mu.Lock()
	c.voices = append([]speechmodel.Voice(nil), voices...)
	c.mu.Unlock()
	close(c.ready)
}

// Ready is closed once the catalog has been populated.
func (c *Catalog) Ready() <-chan struct{} {
	return c.ready
}

// Voices returns a copy of the known voices.
func (c *Catalog) Voices() []speechmodel.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]speechmodel.Voice(nil), c.voices...)
}

// Lookup finds a voice by id.
func (c *Catalog) Lookup(id string) (speechmodel.Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.voices {
		if strings.EqualFold(v.ID, id) {
			return v, true
		}
	}
	return speechmodel.Voice{}, false
}
