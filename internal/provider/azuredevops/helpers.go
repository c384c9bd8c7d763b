package azuredevops

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
)

func extractBranchName(refName *string) string {
	if refName == nil {
		return ""
	}
	return strings.TrimPrefix(*refName, "refs/heads/")
}

func buildPRWebURL(pr *git.GitPullRequest) string {
	if pr.Repository == nil || pr.Repository.WebUrl == nil || pr.PullRequestId == nil {
		return ""
	}
	return fmt.Sprintf("%s/pullrequest/%d", *pr.Repository.WebUrl, *pr.PullRequestId)
}

// buildPRURL assembles the web link from coordinates when the API response
// carries no repository web URL.
func buildPRURL(baseURL, org, project, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%s/_git/%s/pullrequest/%d",
		strings.TrimSuffix(baseURL, "/"), org, url.PathEscape(project), url.PathEscape(repo), number)
}

// itemPath reads the path of a change entry. The SDK leaves Item untyped, so
// it arrives as a decoded JSON object.
func itemPath(item any) (path string, isFolder bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	if p, ok := m["path"].(string); ok {
		path = p
	}
	if f, ok := m["isFolder"].(bool); ok {
		isFolder = f
	}
	return trimRepoPath(path), isFolder
}

// trimRepoPath drops the leading slash Azure DevOps puts on repository paths.
func trimRepoPath(p string) string {
	return strings.TrimPrefix(p, "/")
}

func repoPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
