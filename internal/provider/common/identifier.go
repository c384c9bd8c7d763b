package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johanforsgren/prdeck/internal/domain"
)

// ParsePRIdentifier splits "owner/repo/number". The owner may itself contain
// slashes, as with nested groups or "organization/project" coordinates.
func ParsePRIdentifier(identifier string) (owner, repo string, number int, err error) {
	parts := strings.Split(strings.Trim(identifier, "/"), "/")
	if len(parts) < 3 {
		return "", "", 0, fmt.Errorf("%w: expected 'owner/repo/number', got '%s'", ErrInvalidIdentifierFormat, identifier)
	}

	number, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: invalid PR number '%s'", ErrInvalidIdentifierFormat, parts[len(parts)-1])
	}

	owner, repo, err = ParseRepository(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return "", "", 0, err
	}
	if number <= 0 {
		return "", "", 0, fmt.Errorf("%w: owner, repo, and number must be non-empty and positive", ErrInvalidIdentifierFormat)
	}
	return owner, repo, number, nil
}

// ParseRepository splits "owner/repo" on the last slash.
func ParseRepository(repository string) (owner, repo string, err error) {
	repository = strings.Trim(repository, "/")
	idx := strings.LastIndex(repository, "/")
	if idx <= 0 || idx == len(repository)-1 {
		return "", "", fmt.Errorf("%w: expected 'owner/repo', got '%s'", ErrInvalidIdentifierFormat, repository)
	}
	owner, repo = repository[:idx], repository[idx+1:]
	for _, segment := range strings.Split(owner, "/") {
		if segment == "" {
			return "", "", fmt.Errorf("%w: empty segment in '%s'", ErrInvalidIdentifierFormat, repository)
		}
	}
	return owner, repo, nil
}

// SplitOrganizationProject resolves an Azure DevOps owner into organization and
// project. A bare project name falls back to defaultOrg.
func SplitOrganizationProject(owner, defaultOrg string) (org, project string, err error) {
	parts := strings.Split(strings.Trim(owner, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	case len(parts) == 1 && parts[0] != "" && defaultOrg != "":
		return defaultOrg, parts[0], nil
	case len(parts) == 1 && parts[0] != "":
		return "", "", &domain.ConfigurationError{
			Field:  "owner",
			Reason: fmt.Sprintf("'%s' needs the form 'organization/project' when no organization is configured", owner),
		}
	default:
		return "", "", &domain.ConfigurationError{
			Field:  "owner",
			Reason: fmt.Sprintf("expected 'organization/project', got '%s'", owner),
		}
	}
}

func FormatPRIdentifier(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, number)
}
