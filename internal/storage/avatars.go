package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go-auth-backend/pkg/apierror"
)

// AvatarStore is the delete-only capability handed to the session manager
// for avatar artifacts. References are validated against the configured
// root so a crafted reference cannot reach outside it.
type AvatarStore struct {
	rootAbs string
}

func NewAvatarStore(root string) (*AvatarStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("avatar root cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve avatar root: %w", err)
	}

	if err := os.MkdirAll(rootAbs, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar root: %w", err)
	}

	return &AvatarStore{rootAbs: rootAbs}, nil
}

func (s *AvatarStore) RootAbs() string {
	return s.rootAbs
}

// Remove deletes the artifact the reference points at. A reference that is
// already gone is not an error; callers treat removal as cleanup.
func (s *AvatarStore) Remove(reference string) error {
	resolved, err := s.resolve(reference)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove avatar %q: %w", reference, err)
	}

	return nil
}

func (s *AvatarStore) resolve(reference string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(reference), `\`, "/")
	if normalized == "" || normalized == "/" {
		return "", apierror.BadRequest("avatar reference is empty", reference)
	}

	if strings.Contains(normalized, "\x00") || hasControlCharacters(normalized) {
		return "", apierror.BadRequest("avatar reference contains invalid characters", reference)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", apierror.BadRequest("avatar reference escapes the storage root", reference)
		}
	}

	cleanRel := filepath.Clean(strings.TrimPrefix(normalized, "/"))
	if cleanRel == "." {
		return "", apierror.BadRequest("avatar reference is empty", reference)
	}

	resolvedAbs, err := filepath.Abs(filepath.Join(s.rootAbs, cleanRel))
	if err != nil {
		return "", fmt.Errorf("resolve avatar reference: %w", err)
	}

	if !isWithinRoot(s.rootAbs, resolvedAbs) {
		return "", apierror.BadRequest("avatar reference escapes the storage root", reference)
	}

	return resolvedAbs, nil
}

func hasControlCharacters(value string) bool {
	for _, char := range value {
		if unicode.IsControl(char) {
			return true
		}
	}

	return false
}

func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if candidateAbs == rootAbs {
		return false
	}

	return strings.HasPrefix(candidateAbs, rootAbs+string(filepath.Separator))
}
