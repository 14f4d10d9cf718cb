package content

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var converter = md.NewConverter("", true, nil)

// Markdown renders an HTML fragment as Markdown for terminal previews.
func Markdown(fragment string) (string, error) {
	out, err := converter.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("failed to convert content: %w", err)
	}
	return out, nil
}
