package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/textutil"
)

// maxDocumentBytes bounds how much source text a single job accepts.
const maxDocumentBytes = 4 << 20

// Ingest loads the job's input document and normalizes it into the source
// artifact every later stage reads.
type Ingest struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewIngest constructs the ingestion handler.
func NewIngest(cfg *config.Config, logger *slog.Logger) *Ingest {
	return &Ingest{cfg: cfg, logger: logging.NewComponentLogger(logger, "ingest")}
}

func (i *Ingest) Name() state.StageType { return state.StageIngest }

func (i *Ingest) Description() string { return "Load and normalize the input document" }

func (i *Ingest) ValidateInput(ctx context.Context, rec *state.Record) error {
	switch rec.Input.Type {
	case "text", "file":
	default:
		return services.Wrap(services.ErrValidation, "ingest", "validate input",
			fmt.Sprintf("unsupported input type %q; expected text or file", rec.Input.Type), nil)
	}
	if strings.TrimSpace(rec.Input.Content) == "" {
		return services.Wrap(services.ErrValidation, "ingest", "validate input",
			"input content is empty", nil)
	}
	return nil
}

func (i *Ingest) Execute(ctx context.Context, rec *state.Record) error {
	logger := logging.WithContext(ctx, i.logger)

	var doc SourceDocument
	switch rec.Input.Type {
	case "file":
		path, err := config.ExpandPath(rec.Input.Content)
		if err != nil {
			return services.Wrap(services.ErrValidation, "ingest", "resolve path",
				"could not resolve input file path", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return services.Wrap(services.ErrValidation, "ingest", "open document",
					fmt.Sprintf("input file %s does not exist", path), err)
			}
			return services.Wrap(services.ErrTransient, "ingest", "open document",
				"could not stat input file", err)
		}
		if info.Size() > maxDocumentBytes {
			return services.Wrap(services.ErrValidation, "ingest", "open document",
				fmt.Sprintf("input file exceeds %d byte limit", maxDocumentBytes), nil)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return services.Wrap(services.ErrTransient, "ingest", "read document",
				"could not read input file", err)
		}
		doc.Text = string(raw)
		doc.LoadedFrom = path
		base := filepath.Base(path)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	default:
		doc.Text = rec.Input.Content
		doc.Title = firstLineTitle(rec.Input.Content)
	}

	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Text == "" {
		return services.Wrap(services.ErrValidation, "ingest", "normalize document",
			"document contains no text", nil)
	}
	doc.WordCount = textutil.CountWords(doc.Text)

	if err := rec.SetArtifact(ArtifactSource, doc); err != nil {
		return services.Wrap(services.ErrTransient, "ingest", "store artifact", "", err)
	}
	logger.Info("document ingested",
		logging.String("title", doc.Title),
		logging.Int("words", doc.WordCount))
	return nil
}

func (i *Ingest) HealthCheck(ctx context.Context) stage.Health {
	const name = "ingest"
	if i.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	return stage.Healthy(name)
}

// firstLineTitle derives a title from the first non-empty line, truncated to
// a reasonable heading length.
func firstLineTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if len(line) > 80 {
			line = strings.TrimSpace(line[:80])
		}
		return line
	}
	return "Untitled"
}
