package deck

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when a deck cannot be written, whether the
// writer is disabled or the file could not be rendered or moved into place.
var ErrUnavailable = eris.New("deck generation unavailable")

// Writer saves rendered decks under Dir.
type Writer struct {
	Dir     string
	Enabled bool
}

// NewWriter returns a Writer for dir.
func NewWriter(dir string, enabled bool) *Writer {
	return &Writer{Dir: dir, Enabled: enabled}
}

// Save renders d to a temp file in the output directory and renames it to
// name, so readers never see a partial file. It returns the final path.
func (w *Writer) Save(ctx context.Context, d Deck, name string) (string, error) {
	if w == nil || !w.Enabled {
		return "", eris.Wrap(ErrUnavailable, "deck: writer disabled")
	}
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "deck: save")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", eris.Wrapf(ErrUnavailable, "deck: create output dir %s: %v", w.Dir, err)
	}

	final := filepath.Join(w.Dir, filepath.Base(name))
	tmp := filepath.Join(w.Dir, "."+uuid.NewString()+".pptx.tmp")

	f, err := os.Create(tmp)
	if err != nil {
		return "", eris.Wrapf(ErrUnavailable, "deck: create temp file: %v", err)
	}
	created := d.Created
	if created.IsZero() {
		created = time.Now()
	}
	if err := Render(f, d, created); err != nil {
		f.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrapf(ErrUnavailable, "deck: render: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrapf(ErrUnavailable, "deck: close temp file: %v", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrapf(ErrUnavailable, "deck: rename to %s: %v", final, err)
	}

	zap.L().Info("deck written", zap.String("path", final), zap.Int("slides", len(d.Slides)))
	return final, nil
}
