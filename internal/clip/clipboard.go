package clip

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Writer copies text to the system clipboard.
type Writer struct{}

func New() *Writer {
	return &Writer{}
}

// Copy replaces the clipboard contents. Callers decide whether empty text
// is worth copying; Writer copies whatever it is given.
func (*Writer) Copy(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
