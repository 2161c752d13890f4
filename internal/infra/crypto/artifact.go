package crypto

import (
	"fmt"
	"strings"

	"memochain/internal/domain"
)

// CheckMemoMediaType accepts PDFs and images, the only memo formats the upload
// path admits. The normalised base type is returned.
func CheckMemoMediaType(mediaType string) (string, error) {
	baseType := NormalizeMediaType(mediaType)
	if baseType == "" {
		return "", fmt.Errorf("%w: media type is required", domain.ErrValidation)
	}
	if baseType == "application/pdf" || strings.HasPrefix(baseType, "image/") {
		return baseType, nil
	}
	return "", fmt.Errorf("%w: unsupported media type: %s", domain.ErrValidation, baseType)
}

func NormalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	parts := strings.SplitN(mediaType, ";", 2)
	return strings.ToLower(strings.TrimSpace(parts[0]))
}
